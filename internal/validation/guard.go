package validation

import (
	"regexp"
	"strings"
)

// ScanResult is the outcome of a malicious-content scan.
type ScanResult struct {
	Malicious bool
	// Score is a heuristic risk score in [0,1].
	Score   float64
	Reasons []string
}

type guardPattern struct {
	re     *regexp.Regexp
	reason string
	weight float64
}

const blockThreshold = 0.7

// Markup and script injection aimed at whoever renders the transcript.
var markupPatterns = []guardPattern{
	{regexp.MustCompile(`(?i)<\s*(script|iframe|object|embed|link|style|svg|form|meta)\b`), "markup:dangerous_tag", 0.9},
	{regexp.MustCompile(`(?i)javascript\s*:`), "markup:javascript_url", 0.8},
	{regexp.MustCompile(`(?i)\bon(load|error|click|mouseover|focus|submit)\s*=`), "markup:event_handler", 0.8},
	{regexp.MustCompile(`(?i)data\s*:\s*text/html`), "markup:data_url", 0.8},
	{regexp.MustCompile(`!\[.*\]\(https?://`), "markup:markdown_image", 0.4},
}

// Query injection aimed at downstream CRM storage.
var queryPatterns = []guardPattern{
	{regexp.MustCompile(`(?i)'\s*or\s+'?1'?\s*=\s*'?1`), "query:tautology", 0.8},
	{regexp.MustCompile(`(?i);\s*(drop|delete|truncate|alter)\s+(table|database)\b`), "query:destructive", 0.9},
	{regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`), "query:union_select", 0.8},
}

// Prompt injection aimed at the chat backend.
var promptPatterns = []guardPattern{
	{regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+)?(previous|prior|above|earlier|your)\s+(instructions?|rules?|prompts?|guidelines?)`), "prompt:override_instructions", 0.9},
	{regexp.MustCompile(`(?i)new\s+instructions?\s*:|system\s*prompt\s*:|<<\s*sys(tem)?\s*>>`), "prompt:new_role", 0.9},
	{regexp.MustCompile(`(?i)\[/?INST\]|\[/?SYS\]|<\|im_start\|>|<\|im_end\|>|<\|system\|>`), "prompt:special_tokens", 0.9},
	{regexp.MustCompile(`(?i)jailbreak|DAN\s*mode|developer\s*mode`), "prompt:jailbreak_keyword", 0.8},
	{regexp.MustCompile(`(?i)(reveal|show|print|repeat)\s+(your\s+)?(system\s+prompt|hidden\s+prompt|initial\s+prompt)`), "prompt:exfiltration", 0.7},
}

var allGuardPatterns = func() []guardPattern {
	out := make([]guardPattern, 0, len(markupPatterns)+len(queryPatterns)+len(promptPatterns))
	out = append(out, markupPatterns...)
	out = append(out, queryPatterns...)
	return append(out, promptPatterns...)
}()

// ScanContent scores text against known injection patterns. Each extra
// matching pattern adds 0.1 to the strongest single weight.
func ScanContent(text string) ScanResult {
	if strings.TrimSpace(text) == "" {
		return ScanResult{}
	}

	var reasons []string
	maxWeight := 0.0
	for _, p := range allGuardPatterns {
		if p.re.MatchString(text) {
			reasons = append(reasons, p.reason)
			if p.weight > maxWeight {
				maxWeight = p.weight
			}
		}
	}

	score := maxWeight
	if len(reasons) > 1 {
		score += float64(len(reasons)-1) * 0.1
		if score > 1 {
			score = 1
		}
	}
	return ScanResult{Malicious: score >= blockThreshold, Score: score, Reasons: reasons}
}
