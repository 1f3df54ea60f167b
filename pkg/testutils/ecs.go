package testutils

// -------------------------------------------------------------------------------------------------
// Components
// -------------------------------------------------------------------------------------------------

type Position struct {
	X, Y int
}

func (Position) Name() string {
	return "position"
}

type Velocity struct {
	X, Y float64
}

func (Velocity) Name() string {
	return "velocity"
}

type Health struct {
	Value int
}

func (Health) Name() string {
	return "health"
}

type Label struct {
	Text string
}

func (Label) Name() string {
	return "label"
}

// Tally is a small per-entity counter.
type Tally struct {
	Value uint8
}

func (Tally) Name() string {
	return "tally"
}

// Request and Response model an input component that a system turns into an output component.
type Request struct {
	ID int
}

func (Request) Name() string {
	return "request"
}

type Response struct {
	ID     int
	Result string
}

func (Response) Name() string {
	return "response"
}

// -------------------------------------------------------------------------------------------------
// Resources
// -------------------------------------------------------------------------------------------------

type Counter struct {
	Value int
}

type Settings struct {
	Difficulty string
	Players    int
}

// -------------------------------------------------------------------------------------------------
// Messages
// -------------------------------------------------------------------------------------------------

type Ping struct {
	Seq int
}

type Chat struct {
	From string
	Text string
}
