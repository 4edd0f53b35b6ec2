package signature

import (
	"reflect"

	"github.com/octoreflex/proctriage/internal/model"
)

// ConflictResolution governs what happens when an imported pattern's
// name collides with an existing one.
type ConflictResolution int

const (
	KeepHigherConfidence ConflictResolution = iota // default
	KeepExisting
	ReplaceWithImported
	Merge
)

// ImportResult tracks the outcome of an Import call.
type ImportResult struct {
	Imported int
	Updated  int
	Skipped  int
	Conflicts []ConflictDetail
}

// ConflictDetail records how one name collision was resolved.
type ConflictDetail struct {
	Name       string
	Resolution ConflictResolution
}

// Import merges incoming into existing according to resolution,
// returning the merged set and a summary of what happened. existing
// is never mutated.
func Import(existing []model.PersistedPattern, incoming []model.PersistedPattern, resolution ConflictResolution) ([]model.PersistedPattern, ImportResult) {
	byName := make(map[string]int, len(existing))
	merged := make([]model.PersistedPattern, len(existing))
	copy(merged, existing)
	for i, p := range merged {
		byName[p.Signature.Name] = i
	}

	var result ImportResult

	for _, incomingPattern := range incoming {
		existingIdx, conflict := byName[incomingPattern.Signature.Name]
		if !conflict {
			incomingPattern.Source = model.SourceImported
			merged = append(merged, incomingPattern)
			byName[incomingPattern.Signature.Name] = len(merged) - 1
			result.Imported++
			continue
		}

		resolved := resolveConflict(merged[existingIdx], incomingPattern, resolution)
		result.Conflicts = append(result.Conflicts, ConflictDetail{Name: incomingPattern.Signature.Name, Resolution: resolution})

		switch {
		case reflect.DeepEqual(resolved, merged[existingIdx]):
			result.Skipped++
		default:
			merged[existingIdx] = resolved
			result.Updated++
		}
	}

	return merged, result
}

func resolveConflict(existing, incoming model.PersistedPattern, resolution ConflictResolution) model.PersistedPattern {
	switch resolution {
	case KeepExisting:
		return existing
	case ReplaceWithImported:
		incoming.Source = model.SourceImported
		return incoming
	case Merge:
		merged := existing
		merged.Signature.Patterns.Comm = mergeUnique(existing.Signature.Patterns.Comm, incoming.Signature.Patterns.Comm)
		merged.Signature.Patterns.Cmd = mergeUnique(existing.Signature.Patterns.Cmd, incoming.Signature.Patterns.Cmd)
		merged.Signature.Patterns.Env = mergeUnique(existing.Signature.Patterns.Env, incoming.Signature.Patterns.Env)
		merged.Signature.Patterns.Cwd = mergeUnique(existing.Signature.Patterns.Cwd, incoming.Signature.Patterns.Cwd)
		merged.Signature.Patterns.Socket = mergeUnique(existing.Signature.Patterns.Socket, incoming.Signature.Patterns.Socket)
		merged.Signature.Patterns.ParentComm = mergeUnique(existing.Signature.Patterns.ParentComm, incoming.Signature.Patterns.ParentComm)
		return merged
	default: // KeepHigherConfidence
		if incoming.Signature.ConfidenceWeight > existing.Signature.ConfidenceWeight {
			incoming.Source = model.SourceImported
			return incoming
		}
		return existing
	}
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
