package diag

// Sink accumulates diagnostics across a compilation pass. Every phase
// (lexer, parser, checker) appends to the same Sink; code generation runs
// only once the Sink is empty (spec §4.3, §7 "Propagation").
type Sink struct {
	errors []*Error
}

func NewSink() *Sink { return &Sink{} }

func (s *Sink) Add(err *Error) { s.errors = append(s.errors, err) }

func (s *Sink) Empty() bool { return len(s.errors) == 0 }

func (s *Sink) Errors() []*Error { return s.errors }

func (s *Sink) Len() int { return len(s.errors) }
