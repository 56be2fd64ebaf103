package vfs

import "context"

// TaskKind identifies one operation of the external file-task engine.
type TaskKind int

const (
	TaskCopy TaskKind = iota
	TaskMove
	TaskTrash
	TaskDelete
	TaskLink
	TaskChmodChown
)

func (k TaskKind) String() string {
	switch k {
	case TaskCopy:
		return "copy"
	case TaskMove:
		return "move"
	case TaskTrash:
		return "trash"
	case TaskDelete:
		return "delete"
	case TaskLink:
		return "link"
	case TaskChmodChown:
		return "chmod/chown"
	default:
		return "unknown"
	}
}

// TaskRunner is the boundary to the file-task engine. The directory
// core never copies, moves or deletes anything itself; it hands file
// entities to a runner and observes the outcome only through monitor
// events reporting the resulting filesystem changes.
type TaskRunner interface {
	Submit(ctx context.Context, kind TaskKind, files []*File, dest string) error
}
