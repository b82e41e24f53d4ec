package transform

// DefaultPluginName identifies this loader in host error reports.
const DefaultPluginName = "slangload"

// Loc is a source position. Compile failures are not mapped back to a
// position, so it is always the zero location.
type Loc struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Error is the host-facing shape of a failed transform.
type Error struct {
	Message string `json:"message"`
	Plugin  string `json:"plugin"`
	Loc     Loc    `json:"loc"`
	ID      string `json:"id"`

	Err error `json:"-"`
}

func (e *Error) Error() string {
	return e.Plugin + ": " + e.ID + ": " + e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func (t *Transformer) hostError(id string, err error) *Error {
	return &Error{
		Message: err.Error(),
		Plugin:  t.pluginName,
		ID:      id,
		Err:     err,
	}
}
