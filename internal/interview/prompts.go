package interview

import (
	"fmt"
	"strings"

	"github.com/sells-group/interview-cli/internal/model"
)

// Transcript windows handed to the reasoning service.
const (
	recentWindow       = 10
	continuationShown  = 6
	extractionShown    = 4
	maxFieldsListed    = 10
	maxCannotListed    = 5
	defaultCompanyName = "your startup"
	defaultSector      = "your industry"
	defaultFounderName = "Founder"
)

// placeholderQuestions pad the candidate list when fewer than three topics remain.
var placeholderQuestions = []string{
	"Tell me about your financials?",
	"Tell me about your team?",
	"Tell me about your market?",
}

const continuationRules = `RULES:
1. Be warm and conversational. Acknowledge their answer in 1-2 sentences.
2. Then ask exactly ONE of the next questions above, in your own words.
3. If they said they don't know, try one different angle on the same topic, then move on.
4. Keep it to 40-80 words, like a coffee chat rather than a form.
5. Your message MUST END WITH "?".
6. Never ask about a topic they already said they cannot answer.
`

const closingTasks = `YOUR TASK:
1. Thank them warmly for their time.
2. Explain the next steps: you will update the investment memo and share feedback.
3. Encourage them about their company.
4. Tell them they will hear back within %s.
5. Keep a positive, professional tone in 60-100 words.
`

const extractionRules = `INSTRUCTIONS:
- Extract information from the LATEST founder message only.
- Use the exact field names from FIELDS WE NEED.
- cannot_answer lists only fields the founder said, in this message, they cannot answer.
- confidence is "high" when the answer is clear, "medium" when it is partial, "low" when it is vague.
- Respond with a single JSON object matching this schema and nothing else:
`

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func founderName(p model.Participant) string { return orDefault(p.FounderName, defaultFounderName) }
func companyName(p model.Participant) string { return orDefault(p.CompanyName, defaultCompanyName) }
func sectorName(p model.Participant) string  { return orDefault(p.Sector, defaultSector) }

// window returns the last n messages of transcript.
func window(transcript []model.Message, n int) []model.Message {
	if n <= 0 || len(transcript) <= n {
		return transcript
	}
	return transcript[len(transcript)-n:]
}

func writeTranscript(b *strings.Builder, msgs []model.Message, agent, participant string) {
	for _, m := range msgs {
		label := participant
		if m.Role == model.RoleAgent {
			label = agent
		}
		fmt.Fprintf(b, "%s: %s\n", label, m.Text)
	}
}

// buildContinuationPrompt asks for an acknowledgement plus one next question.
func buildContinuationPrompt(persona Persona, in ComposeInput, recent int) string {
	p := in.Participant
	progress := model.ProgressOf(in.Catalog, in.State.GatheredInfo, in.State.CannotAnswer)

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a friendly investment analyst having a conversation with %s about %s (%s).\n\n",
		persona.AnalystName, founderName(p), companyName(p), sectorName(p))

	b.WriteString("CONTEXT:\n")
	fmt.Fprintf(&b, "- Progress: %d/%d topics covered\n", progress.Attempted, progress.Total)
	fmt.Fprintf(&b, "- Their latest message: %q\n", in.Message)
	if len(in.State.CannotAnswer) > 0 {
		cannot := in.State.CannotAnswer
		if len(cannot) > maxCannotListed {
			cannot = cannot[:maxCannotListed]
		}
		fmt.Fprintf(&b, "- Topics they cannot answer: %s\n", strings.Join(cannot, ", "))
	}

	b.WriteString("\nNEXT QUESTIONS TO ASK (pick one):\n")
	next := candidates(in.StillNeeded)
	for i := range maxCandidates {
		q := placeholderQuestions[i]
		if i < len(next) {
			q = next[i].Question
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}

	b.WriteString("\nRECENT CONVERSATION:\n")
	writeTranscript(&b, window(window(in.State.Transcript, recent), continuationShown), persona.AnalystName, founderName(p))

	b.WriteString("\n")
	b.WriteString(continuationRules)
	return b.String()
}

// buildClosingPrompt asks for a warm wrap-up message.
func buildClosingPrompt(persona Persona, in ComposeInput) string {
	p := in.Participant
	progress := model.ProgressOf(in.Catalog, in.State.GatheredInfo, in.State.CannotAnswer)

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, an investment analyst who just finished interviewing %s, founder of %s (%s).\n\n",
		persona.AnalystName, founderName(p), companyName(p), sectorName(p))

	b.WriteString("INTERVIEW SUMMARY:\n")
	fmt.Fprintf(&b, "- Total topics: %d\n", progress.Total)
	fmt.Fprintf(&b, "- Topics answered: %d\n", progress.Gathered)
	fmt.Fprintf(&b, "- Topics they couldn't answer: %d\n", progress.CannotAnswer)
	fmt.Fprintf(&b, "- Their last message: %q\n\n", in.Message)

	fmt.Fprintf(&b, closingTasks, persona.Turnaround)
	return b.String()
}

// buildExtractionPrompt asks for a structured reading of the latest answer.
func buildExtractionPrompt(c *model.Catalog, s model.ConversationState, needed []model.Issue, recent int) string {
	var b strings.Builder
	b.WriteString("Analyze this founder interview and extract structured answers.\n\n")

	b.WriteString("RECENT CONVERSATION:\n")
	writeTranscript(&b, window(window(s.Transcript, recent), extractionShown), "Analyst", "Founder")

	b.WriteString("\nFIELDS WE NEED:\n")
	listed := needed
	if len(listed) > maxFieldsListed {
		listed = listed[:maxFieldsListed]
	}
	for _, iss := range listed {
		fmt.Fprintf(&b, "- %s: %s\n", iss.Field, iss.Question)
	}

	var have []string
	for _, f := range c.Fields() {
		if _, ok := s.GatheredInfo[f]; ok {
			have = append(have, f)
		}
	}
	if len(have) > 0 {
		fmt.Fprintf(&b, "\nALREADY HAVE: %s\n", strings.Join(have, ", "))
	}

	b.WriteString("\n")
	b.WriteString(extractionRules)
	b.WriteString(extractionSchemaJSON())
	b.WriteString("\n")
	return b.String()
}
