package agent

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ashureev/sqlchat/internal/querier"
)

// Step event types streamed to the UI as the agent works.
const (
	EventSQL    = "sql"    // a query the agent decided to run
	EventResult = "result" // the rendered result of that query
	EventAnswer = "answer" // a chunk of the final answer
)

// StepEvent is one intermediate item of the agent's reasoning stream.
type StepEvent struct {
	Type    string `json:"type"`
	Step    int    `json:"step"`
	Content string `json:"content"`
}

// Agent runs the plan/query/observe loop against one database handle.
type Agent struct {
	llm      LLM
	maxSteps int
	maxRows  int
}

// New creates an agent. maxSteps bounds the number of SQL round-trips,
// maxRows caps each observation fed back to the model.
func New(llm LLM, maxSteps, maxRows int) *Agent {
	if maxSteps <= 0 {
		maxSteps = 8
	}
	if maxRows <= 0 {
		maxRows = 50
	}
	return &Agent{llm: llm, maxSteps: maxSteps, maxRows: maxRows}
}

var sqlBlockRe = regexp.MustCompile("(?is)```sql\\s*(.*?)```")

// extractSQL pulls the first fenced SQL block out of a model reply.
func extractSQL(text string) (string, bool) {
	m := sqlBlockRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	query := strings.TrimSpace(m[1])
	return query, query != ""
}

var finalAnswerRe = regexp.MustCompile(`(?i)final answer:`)

// extractFinal returns the text after a "Final Answer:" marker. The match is
// located on the original string; lowercasing a copy first would shift byte
// offsets for non-ASCII model output.
func extractFinal(text string) (string, bool) {
	loc := finalAnswerRe.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	return strings.TrimSpace(text[loc[1]:]), true
}

// Ask runs the reasoning loop for one formatted prompt. Each SQL query the
// model proposes is executed and its rendered result fed back as the next
// user turn. Output the loop cannot parse is tolerated by treating it as the
// final answer, so a confused model degrades to a plain chat reply instead
// of an error.
func (a *Agent) Ask(ctx context.Context, db *sql.DB, prompt string) iter.Seq2[*StepEvent, error] {
	return func(yield func(*StepEvent, error) bool) {
		turns := []Turn{{Role: RoleUser, Content: prompt}}

		for step := 1; step <= a.maxSteps; step++ {
			var reply strings.Builder
			for chunk, err := range a.llm.Generate(ctx, turns) {
				if err != nil {
					yield(nil, err)
					return
				}
				reply.WriteString(chunk)
			}
			text := reply.String()
			turns = append(turns, Turn{Role: RoleModel, Content: text})

			if answer, ok := extractFinal(text); ok {
				yield(&StepEvent{Type: EventAnswer, Step: step, Content: answer}, nil)
				return
			}

			query, ok := extractSQL(text)
			if !ok {
				// No SQL, no final marker. Tolerate and surface as-is.
				slog.Debug("agent reply had no parseable action, treating as answer",
					"step", step, "length", len(text))
				yield(&StepEvent{Type: EventAnswer, Step: step, Content: strings.TrimSpace(text)}, nil)
				return
			}

			if !yield(&StepEvent{Type: EventSQL, Step: step, Content: query}, nil) {
				return
			}

			observation := a.observe(ctx, db, query)
			if !yield(&StepEvent{Type: EventResult, Step: step, Content: observation}, nil) {
				return
			}
			turns = append(turns, Turn{Role: RoleUser, Content: "Query result:\n" + observation})
		}

		yield(nil, fmt.Errorf("agent stopped after %d steps without a final answer", a.maxSteps))
	}
}

// observe runs one query and renders it for the model. Query errors become
// observations rather than failures so the model can correct itself.
func (a *Agent) observe(ctx context.Context, db *sql.DB, query string) string {
	res, err := querier.Run(ctx, db, query, a.maxRows)
	if err != nil {
		return "Error: " + err.Error()
	}
	return querier.RenderTable(res)
}
