package models

// RunKind distinguishes plain text from mentions and inline math.
type RunKind string

const (
	RunText            RunKind = "text"
	RunPageMention     RunKind = "page_mention"
	RunDatabaseMention RunKind = "database_mention"
	RunUserMention     RunKind = "user_mention"
	RunDateMention     RunKind = "date_mention"
	RunEquation        RunKind = "equation"
)

// Style is the set of independent annotations on a run.
type Style struct {
	Bold          bool
	Italic        bool
	Strikethrough bool
	Underline     bool
	Code          bool
}

// DateRange is the payload of a date mention. End is empty for a single date.
type DateRange struct {
	Start string
	End   string
}

// InlineRun is one styled span of text. Text is already resolved display
// text; Target, Date and Expression are set according to Kind.
type InlineRun struct {
	Kind       RunKind
	Text       string
	Style      Style
	Link       string
	Target     string
	Date       *DateRange
	Expression string
}
