// Package prompt builds the text sent to the completion service.
// Every builder is pure: the same inputs always yield the same prompt.
package prompt

import (
	"strings"

	"github.com/KaramelBytes/datachat-cli/internal/insight"
	"github.com/KaramelBytes/datachat-cli/internal/profile"
	"github.com/KaramelBytes/datachat-cli/internal/utils"
)

// MaxSampleChars caps the CSV sample embedded in any prompt, regardless of
// how many lines the caller passes in.
const MaxSampleChars = 24000

const persona = `You are a senior data analyst. You answer questions about a tabular dataset
the user has uploaded. Ground every statement in the data sample and the schema you are given.
Prefer concrete numbers over vague language. When a chart helps, attach one that directly
supports the insight it belongs to. If the data cannot answer the question, say so plainly.`

const outputRules = `Respond with a single JSON object and nothing else. Field rules:
- "inspectionSummary" (optional): {"rowCount": int, "columnCount": int, "columns": [{"name", "type", "description"}]}.
- "findings" (required, at least one): array of {"insight": string, "plot"?: object}.
- "plot" (optional): {"chartType": one of "bar" | "line" | "pie" | "scatter", "title": string,
  "description": string, "data": string, "dataKeys": {"x"?: string, "y"?: [string], "name"?: string, "value"?: string}}.
- "plot.data" is a JSON-encoded 2-D array of strings. The FIRST row is the header row of column
  names; every following row holds one data point, e.g. "[[\"Month\",\"Sales\"],[\"Jan\",\"150\"]]".
- "dataKeys.y" is ALWAYS an array, even for a single series.
- Every key named in "dataKeys" must be one of the header names in "plot.data".
- Use "x" and "y" for bar, line and scatter charts; use "name" and "value" for pie charts.
- "suggestedFollowups" (optional): up to 3 short follow-up questions.`

// Input carries everything the analysis prompt is built from.
type Input struct {
	FileName string
	// Sample is a bounded CSV excerpt (header plus first N lines).
	Sample   string
	Question string
	// History is the recent transcript, Summary the rolling summary of
	// older turns. Either section is omitted when empty.
	History string
	Summary string
	Profile *insight.DatasetProfile
}

// Analysis builds the full analysis prompt.
func Analysis(in Input) string {
	var sb strings.Builder
	sb.WriteString("[INSTRUCTIONS]\n")
	sb.WriteString(persona)
	sb.WriteString("\n\n")

	if s := strings.TrimSpace(in.Summary); s != "" {
		sb.WriteString("[CONVERSATION SUMMARY]\n")
		sb.WriteString(s)
		sb.WriteString("\n\n")
	}
	if h := strings.TrimSpace(in.History); h != "" {
		sb.WriteString("[RECENT CONVERSATION]\n")
		sb.WriteString(h)
		sb.WriteString("\n\n")
	}
	if in.Profile != nil {
		sb.WriteString(profile.Markdown(in.FileName, in.Profile))
		sb.WriteString("\n")
	}
	writeSample(&sb, in.Sample)

	sb.WriteString("[OUTPUT RULES]\n")
	sb.WriteString(outputRules)
	sb.WriteString("\n\n")

	sb.WriteString("[QUESTION]\n")
	sb.WriteString(strings.TrimSpace(in.Question))
	sb.WriteString("\n")
	return sb.String()
}

// QuickRecognition builds the pre-analysis prompt from only the header and
// the first few lines of the file.
func QuickRecognition(headers []string, firstLines string) string {
	var sb strings.Builder
	sb.WriteString("[INSTRUCTIONS]\n")
	sb.WriteString("You are a data analyst taking a first look at a CSV file. In two or three sentences,\n")
	sb.WriteString("describe what the dataset appears to contain. Then propose exactly 3 questions a user\n")
	sb.WriteString("could ask that this data can actually answer.\n\n")

	sb.WriteString("[COLUMNS]\n")
	sb.WriteString(strings.Join(headers, ", "))
	sb.WriteString("\n\n")
	writeSample(&sb, firstLines)

	sb.WriteString("[OUTPUT RULES]\n")
	sb.WriteString(`Respond with a single JSON object: {"summary": string, "suggestedQuestions": [string, string, string]}.`)
	sb.WriteString("\n")
	return sb.String()
}

// Summary builds the summarization prompt that folds older turns into the
// rolling conversation summary.
func Summary(olderTranscript, previousSummary string) string {
	var sb strings.Builder
	sb.WriteString("[INSTRUCTIONS]\n")
	sb.WriteString("Summarize the conversation below between a user and a data analyst. Keep every concrete\n")
	sb.WriteString("data point that was reported (numbers, column names, dates, rankings) and the thread of\n")
	sb.WriteString("inquiry: what the user asked, in order, and what remains open. Be concise; no preamble.\n\n")
	if s := strings.TrimSpace(previousSummary); s != "" {
		sb.WriteString("[PREVIOUS SUMMARY]\n")
		sb.WriteString(s)
		sb.WriteString("\n\n")
	}
	sb.WriteString("[CONVERSATION]\n")
	sb.WriteString(strings.TrimSpace(olderTranscript))
	sb.WriteString("\n\n")
	sb.WriteString("[OUTPUT RULES]\n")
	sb.WriteString(`Respond with a single JSON object: {"summary": string}.`)
	sb.WriteString("\n")
	return sb.String()
}

func writeSample(sb *strings.Builder, sample string) {
	sb.WriteString("[DATA SAMPLE]\n")
	s, cut := utils.TruncateRunes(strings.TrimSpace(sample), MaxSampleChars)
	if cut {
		// do not leave a half line at the end
		if i := strings.LastIndexByte(s, '\n'); i > 0 {
			s = s[:i]
		}
	}
	sb.WriteString(s)
	sb.WriteString("\n")
	if cut {
		sb.WriteString("(sample truncated)\n")
	}
	sb.WriteString("\n")
}
