package personalize

import (
	"strings"
)

// postProcess applies the house rules to one generated body: banned
// openers are replaced with the anchor observation, anchor restatements
// beyond the first are dropped, and a strong commonality (or an
// explicitly targeted request) earns a resume mention if the model left
// it out.
func postProcess(body string, s Signals, sender Sender, targeted bool, rules *Rules) string {
	body = rewriteOpener(body, s, rules)
	body = dedupeAnchorMentions(body, s)
	body = ensureResumeMention(body, s, sender, targeted, rules)
	return body
}

// rewriteOpener replaces a banned first sentence with the anchor
// observation so every draft opens with something specific.
func rewriteOpener(body string, s Signals, rules *Rules) string {
	greeting, rest := splitGreeting(body)
	sentence := firstSentence(rest)
	lowered := strings.ToLower(strings.TrimSpace(sentence))
	for _, banned := range rules.BannedOpeners {
		if strings.HasPrefix(lowered, banned) {
			return greeting + replaceFirstSentence(rest, anchorSentence(s))
		}
	}
	return body
}

// ensureResumeMention appends the sender's background line ahead of the
// sign-off when the draft has earned it.
func ensureResumeMention(body string, s Signals, sender Sender, targeted bool, rules *Rules) string {
	if sender.ResumeLine == "" || (!s.Strong() && !targeted) {
		return body
	}
	resume := strings.TrimSpace(sender.ResumeLine)
	if strings.Contains(body, resume) {
		return body
	}

	mention := "For context: " + resume
	if idx := strings.LastIndex(body, rules.SignOff); idx > 0 {
		return body[:idx] + mention + "\n\n" + body[idx:]
	}
	return body + "\n\n" + mention
}

// dedupeAnchorMentions keeps the first sentence citing the anchor
// detail and drops later restatements. One anchor reference per
// message; generation sometimes circles back to it.
func dedupeAnchorMentions(body string, s Signals) string {
	detail := foldWords(s.AnchorDetail)
	if strings.TrimSpace(detail) == "" {
		return body
	}

	var b strings.Builder
	seen := false
	for _, seg := range splitSegments(body) {
		if strings.Contains(foldWords(seg), detail) {
			if seen {
				continue
			}
			seen = true
		}
		b.WriteString(seg)
	}
	return b.String()
}

// splitSegments cuts text into sentences, each keeping its leading
// whitespace and closing punctuation, so dropping one excises the
// sentence cleanly.
func splitSegments(text string) []string {
	var segs []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			segs = append(segs, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		segs = append(segs, text[start:])
	}
	return segs
}

// foldWords lowercases and strips punctuation, padding with spaces so
// whole-phrase containment respects word boundaries.
func foldWords(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return " " + strings.Join(strings.Fields(b.String()), " ") + " "
}

// dedupeOpening swaps a batch-duplicate opening sentence for an
// alternative phrasing of the same anchor. seen tracks normalized
// opening sentences already used in the batch.
func dedupeOpening(body string, s Signals, seen map[string]struct{}) string {
	greeting, rest := splitGreeting(body)
	sentence := normalizeSentence(firstSentence(rest))
	if sentence == "" {
		return body
	}
	if _, dup := seen[sentence]; dup {
		replaced := greeting + replaceFirstSentence(rest, altAnchorSentence(s))
		seen[normalizeSentence(altAnchorSentence(s))] = struct{}{}
		return replaced
	}
	seen[sentence] = struct{}{}
	return body
}

// splitGreeting peels off a leading salutation line ("Hi Ada,") so the
// rules operate on the first content sentence.
func splitGreeting(body string) (greeting, rest string) {
	trimmed := strings.TrimLeft(body, "\n ")
	line, remainder, found := strings.Cut(trimmed, "\n")
	if !found {
		return "", body
	}
	lowered := strings.ToLower(line)
	if strings.HasSuffix(strings.TrimSpace(line), ",") &&
		(strings.HasPrefix(lowered, "hi ") || strings.HasPrefix(lowered, "hello ") || strings.HasPrefix(lowered, "hey ") || strings.HasPrefix(lowered, "dear ")) {
		rest = strings.TrimLeft(remainder, "\n")
		return line + "\n\n", rest
	}
	return "", body
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			return text[:i+1]
		}
		if r == '\n' {
			return text[:i]
		}
	}
	return text
}

func replaceFirstSentence(text, replacement string) string {
	sentence := firstSentence(text)
	text = strings.TrimSpace(text)
	rest := strings.TrimLeft(text[len(sentence):], " ")
	if rest == "" {
		return replacement
	}
	return replacement + " " + rest
}

func normalizeSentence(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
