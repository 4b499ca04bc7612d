package loop

import "strings"

// FeedbackWindow is the bounded context handed to the generator on an
// Improve transition: the evaluator's critique, the full text of the latest
// attempt, and one-line summaries of every earlier attempt. History never
// grows into the generator unbounded.
type FeedbackWindow struct {
	// Feedback is the evaluator's critique of the latest attempt.
	Feedback string
	// LastAttempt is the full text of the most recent artifact.
	LastAttempt string
	// EarlierSummaries holds one clipped line per earlier attempt, oldest
	// first.
	EarlierSummaries []string
}

// buildWindow assembles the feedback window from the attempt history.
func buildWindow(history []Attempt, summaryWidth int) FeedbackWindow {
	if len(history) == 0 {
		return FeedbackWindow{}
	}

	last := history[len(history)-1]
	w := FeedbackWindow{
		Feedback:    last.Verdict.Feedback,
		LastAttempt: last.Artifact,
	}
	for _, earlier := range history[:len(history)-1] {
		w.EarlierSummaries = append(w.EarlierSummaries, summarize(earlier.Artifact, summaryWidth))
	}
	return w
}

// summarize clips an artifact to its first line, bounded by width.
func summarize(artifact string, width int) string {
	line := artifact
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if width > 0 && len(line) > width {
		line = line[:width-3] + "..."
	}
	return line
}
