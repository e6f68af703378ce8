package domain

// RoomName identifies a broadcast domain. Case-sensitive, trimmed by the caller.
type RoomName string
