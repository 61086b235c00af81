// Package export writes interview sessions to xlsx workbooks.
package export

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/interview-cli/internal/model"
)

// Sheet names in the exported workbook.
const (
	SheetAnswers    = "Answers"
	SheetTranscript = "Transcript"
)

// Field statuses in the Answers sheet.
const (
	StatusGathered     = "gathered"
	StatusCannotAnswer = "cannot_answer"
	StatusMissing      = "missing"
)

var (
	answerHeader     = []string{"Field", "Category", "Question", "Status", "Value", "Confidence"}
	transcriptHeader = []string{"#", "Role", "Text"}
)

// Workbook builds a workbook with one Answers row per catalog field, in
// catalog order, and the full transcript.
func Workbook(s *model.Session) (*xlsx.File, error) {
	if s == nil || s.Catalog == nil {
		return nil, eris.New("export: session has no catalog")
	}

	f := xlsx.NewFile()

	answers, err := f.AddSheet(SheetAnswers)
	if err != nil {
		return nil, eris.Wrap(err, "export: add answers sheet")
	}
	addRow(answers, answerHeader)
	for _, iss := range s.Catalog.Issues() {
		status, value, confidence := StatusMissing, "", ""
		if a, ok := s.State.GatheredInfo[iss.Field]; ok {
			status, value, confidence = StatusGathered, a.Value, string(a.Confidence)
		} else if s.State.IsCannotAnswer(iss.Field) {
			status = StatusCannotAnswer
		}
		addRow(answers, []string{iss.Field, iss.Category, iss.Question, status, value, confidence})
	}

	transcript, err := f.AddSheet(SheetTranscript)
	if err != nil {
		return nil, eris.Wrap(err, "export: add transcript sheet")
	}
	addRow(transcript, transcriptHeader)
	for i, m := range s.State.Transcript {
		row := transcript.AddRow()
		row.AddCell().SetInt(i + 1)
		row.AddCell().SetString(roleLabel(m.Role))
		row.AddCell().SetString(m.Text)
	}

	return f, nil
}

// Write streams the session workbook to w.
func Write(w io.Writer, s *model.Session) error {
	f, err := Workbook(s)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}

// Save writes the session workbook to path.
func Save(path string, s *model.Session) error {
	f, err := Workbook(s)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "export: save workbook")
	}
	return nil
}

// FileName is the suggested workbook name for a session.
func FileName(s *model.Session) string {
	name := s.Participant.CompanyName
	if name == "" {
		name = s.Token
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, name)
	if name == "" {
		name = "session"
	}
	return "interview_" + name + ".xlsx"
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func roleLabel(r model.Role) string {
	if r == model.RoleAgent {
		return "Analyst"
	}
	return "Founder"
}
