package resolve

import (
	"context"

	"github.com/jward/semindex/internal/model"
	"github.com/jward/semindex/internal/oracle"
)

// Site is one use of a name that needs a target.
type Site struct {
	File   string
	Line   int
	Column int
	Name   string
	Role   model.ReferenceRole

	// Attribute is set for receiver.name forms. Receiver is the receiver's
	// text when it is a simple name, at ReceiverLine/ReceiverColumn.
	Attribute      bool
	Receiver       string
	ReceiverLine   int
	ReceiverColumn int

	// Candidates are the oracle's answers for the site, filled in before
	// any strategy runs.
	Candidates []oracle.Declaration
}

// first returns the candidate strategies work from.
func (s *Site) first() (oracle.Declaration, bool) {
	if len(s.Candidates) == 0 {
		return oracle.Declaration{}, false
	}
	return s.Candidates[0], true
}

// Resolution is the outcome of the strategy chain for one site.
type Resolution struct {
	Target     string
	Kind       model.SymbolKind
	External   bool
	Receiver   string
	MethodName string
	Strategy   string // name of the strategy that set Target
}

// Resolved reports whether a target was found.
func (r *Resolution) Resolved() bool { return r.Target != "" }

// Strategy is one step of the resolution chain. Apply reports whether the
// chain should stop.
type Strategy interface {
	Name() string
	Apply(ctx context.Context, site *Site, res *Resolution) bool
}

// DefaultStrategies returns the standard chain: exact oracle match, span
// match, external synthesis, then receiver recovery.
func DefaultStrategies(index *Index, rec *Recorder, o oracle.Oracle) []Strategy {
	return []Strategy{
		ExactMatch{Index: index},
		SpanMatch{Index: index},
		ExternalSymbol{Index: index, Recorder: rec},
		ReceiverRecovery{Index: index, Oracle: o},
	}
}

// ExactMatch binds the first candidate to the definition declared on the
// same file and line with the same name.
type ExactMatch struct{ Index *Index }

func (ExactMatch) Name() string { return "oracle-exact" }

func (s ExactMatch) Apply(_ context.Context, site *Site, res *Resolution) bool {
	c, ok := site.first()
	if !ok || c.DefiningFile == "" {
		return false
	}
	d, ok := s.Index.AtLine(c.DefiningFile, c.DefiningLine, c.SimpleName)
	if !ok {
		return false
	}
	res.Target, res.Kind = d.SymbolID, d.Kind
	return true
}

// SpanMatch binds the first candidate to the innermost same-named definition
// whose span contains the candidate's line.
type SpanMatch struct{ Index *Index }

func (SpanMatch) Name() string { return "oracle-span" }

func (s SpanMatch) Apply(_ context.Context, site *Site, res *Resolution) bool {
	c, ok := site.first()
	if !ok || c.DefiningFile == "" {
		return false
	}
	d, ok := s.Index.InSpan(c.DefiningFile, c.DefiningLine, c.SimpleName)
	if !ok {
		return false
	}
	res.Target, res.Kind = d.SymbolID, d.Kind
	return true
}

// ExternalSymbol records candidates declared outside the project.
type ExternalSymbol struct {
	Index    *Index
	Recorder *Recorder
}

func (ExternalSymbol) Name() string { return "external" }

func (s ExternalSymbol) Apply(_ context.Context, site *Site, res *Resolution) bool {
	c, ok := site.first()
	if !ok || c.FullyQualifiedName == "" {
		return false
	}
	if c.DefiningFile != "" && s.Index.HasFile(c.DefiningFile) {
		return false
	}
	d, ok := s.Recorder.Record(c, site.Role)
	if !ok {
		return false
	}
	res.Target, res.Kind, res.External = d.SymbolID, d.Kind, true
	return true
}

// ReceiverRecovery runs when nothing else resolved an attribute call. It
// records the receiver's definition when the receiver is a simple name the
// project defines. The result is a hint and never sets Target.
type ReceiverRecovery struct {
	Index  *Index
	Oracle oracle.Oracle
}

func (ReceiverRecovery) Name() string { return "receiver-recovery" }

func (s ReceiverRecovery) Apply(ctx context.Context, site *Site, res *Resolution) bool {
	if site.Role != model.RoleCall || !site.Attribute || site.Receiver == "" || s.Oracle == nil {
		return false
	}
	decls, err := s.Oracle.Resolve(ctx, site.File, site.ReceiverLine, site.ReceiverColumn)
	if err != nil || len(decls) == 0 {
		return false
	}
	c := decls[0]
	if d, ok := s.Index.AtLine(c.DefiningFile, c.DefiningLine, c.SimpleName); ok {
		res.Receiver = d.SymbolID
		return true
	}
	if d, ok := s.Index.InSpan(c.DefiningFile, c.DefiningLine, c.SimpleName); ok {
		res.Receiver = d.SymbolID
		return true
	}
	return false
}
