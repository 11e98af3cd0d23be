package types

// JSONMap is a loose jsonb payload for snapshots and side-channel metadata.
type JSONMap map[string]any
