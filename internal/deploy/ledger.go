package deploy

// Mode selects whether a run mutates the host or only reports
type Mode string

const (
	ModeApply  Mode = "apply"
	ModeDryRun Mode = "dry-run"
)

// RunContext carries the per-run state through every step. One RunContext
// is created per run and passed explicitly; nothing survives the run.
type RunContext struct {
	Mode    Mode
	Changed bool // monotonically set true, never reset within a run

	mutated    bool // set when the first mutation is applied to the host
	rolledBack bool // single-shot rollback guard
	ledger     *Ledger
}

// NewRunContext creates the state for a single run
func NewRunContext(mode Mode) *RunContext {
	return &RunContext{
		Mode:   mode,
		ledger: &Ledger{},
	}
}

// markChanged records that the run found (or made) a difference
func (r *RunContext) markChanged() {
	r.Changed = true
}

// markMutated records that the host has been touched; from this point on
// any step failure must trigger rollback
func (r *RunContext) markMutated() {
	r.mutated = true
}

// EntryKind discriminates the two reversible action types
type EntryKind int

const (
	// EntryRevision records the prior revision of a pinned component
	EntryRevision EntryKind = iota
	// EntryBackup records a backup taken before replacing an artifact
	EntryBackup
)

// Entry is one reversible action taken during a run
type Entry struct {
	Kind EntryKind

	// revision entries
	Component     string
	Path          string
	PriorRevision string

	// backup entries
	BackupPath string
	DestPath   string
}

// Ledger is the ordered record of reversible actions taken this run.
// It is append-only during the main sequence and drained exactly once,
// in reverse append order, by rollback.
type Ledger struct {
	entries []Entry
	drained bool
}

// RecordRevision appends a component revision entry
func (l *Ledger) RecordRevision(component, path, prior string) {
	l.entries = append(l.entries, Entry{
		Kind:          EntryRevision,
		Component:     component,
		Path:          path,
		PriorRevision: prior,
	})
}

// RecordBackup appends an artifact backup entry
func (l *Ledger) RecordBackup(backupPath, destPath string) {
	l.entries = append(l.entries, Entry{
		Kind:       EntryBackup,
		BackupPath: backupPath,
		DestPath:   destPath,
	})
}

// Len returns the number of recorded entries
func (l *Ledger) Len() int {
	return len(l.entries)
}

// HasRevision reports whether a revision entry already exists for path.
// The prior revision of a component is captured at most once per run.
func (l *Ledger) HasRevision(path string) bool {
	for _, e := range l.entries {
		if e.Kind == EntryRevision && e.Path == path {
			return true
		}
	}
	return false
}

// Drain returns the entries in reverse append order and marks the ledger
// consumed. A second drain returns nil.
func (l *Ledger) Drain() []Entry {
	if l.drained {
		return nil
	}
	l.drained = true

	reversed := make([]Entry, 0, len(l.entries))
	for i := len(l.entries) - 1; i >= 0; i-- {
		reversed = append(reversed, l.entries[i])
	}
	return reversed
}
