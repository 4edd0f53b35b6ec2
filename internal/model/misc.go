package model

import "time"

// BackupMetadata describes one retained binary backup for self-update
// rollback (spec §3/§6).
type BackupMetadata struct {
	Version   string
	Checksum  string // hex SHA-256
	SizeBytes int64
	CreatedAt time.Time
}

// ProcessMatchContext is the subset of process state the signature
// matcher conditions on (spec §4.5).
type ProcessMatchContext struct {
	Comm       string
	Cmdline    string
	Cwd        string
	EnvVars    []string
	SocketPaths []string
	ParentComm string
}
