package normalize

import (
	"regexp"
	"strings"
)

// payloadNameFields lists, in priority order, where bank integrations put the
// name of the other party. Each path is walked through nested objects.
var payloadNameFields = [][]string{
	{"pagador", "nome"},
	{"payer", "name"},
	{"contraparte", "nome"},
	{"counterparty", "name"},
	{"nomePagador"},
	{"pagador_nome"},
	{"nome_pagador"},
	{"favorecido", "nome"},
	{"beneficiario", "nome"},
	{"recebedor", "nome"},
	{"counterparty_name"},
}

// descriptionPatterns are tried in order; the first capture group holds the
// name.
var descriptionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)PIX\s+(?:ENVIADO|RECEBIDO)\s*-\s*(?:Cp\s*:?\s*)?[\d\-]*-?\s*(.+)`),
	regexp.MustCompile(`(?i)PIX\s+(?:ENVIADO|RECEBIDO)\s+(?:DE\s+|PARA\s+)?(.+)`),
	regexp.MustCompile(`(?i)TED\s+[\d\s]+(.+)`),
	regexp.MustCompile(`(?i)TRANSF(?:ERENCIA)?\s+(?:PIX\s+)?(?:DE\s+|PARA\s+)?(.+)`),
	regexp.MustCompile(`(?i)PAG\*(.+)`),
}

var (
	leadingCodeRe   = regexp.MustCompile(`^[\d\s\-:]+`)
	trailingPunctRe = regexp.MustCompile(`[\*\-\s]+$`)
	longDigitRunRe  = regexp.MustCompile(`\d{6,}`)
	companySuffixRe = regexp.MustCompile(`(?i)\s+(LTDA|ME|EPP|EIRELI|S/A|SA)\.?$`)
	collapseSpaceRe = regexp.MustCompile(`\s+`)
)

// minNameLen rejects leftovers such as "SA" or a lone initial.
const minNameLen = 3

// ExtractCounterparty finds the other party's name for a statement line. It
// looks at the raw payload first and falls back to parsing the description.
// Missing, mistyped or garbage fields are skipped, never reported.
func ExtractCounterparty(payload map[string]interface{}, description string) (string, bool) {
	if name, ok := CounterpartyFromPayload(payload); ok {
		return name, true
	}
	return CounterpartyFromDescription(description)
}

// CounterpartyFromPayload walks payloadNameFields over payload.
func CounterpartyFromPayload(payload map[string]interface{}) (string, bool) {
	if len(payload) == 0 {
		return "", false
	}
	for _, path := range payloadNameFields {
		if v, ok := lookupString(payload, path); ok {
			if name, ok := cleanName(v); ok {
				return name, true
			}
		}
	}
	return "", false
}

// CounterpartyFromDescription recognises the PIX, TED, transfer and card
// payment layouts used in Brazilian statements.
func CounterpartyFromDescription(description string) (string, bool) {
	description = strings.TrimSpace(description)
	if description == "" {
		return "", false
	}

	for i, re := range descriptionPatterns {
		m := re.FindStringSubmatch(description)
		if m == nil || strings.TrimSpace(m[1]) == "" {
			continue
		}
		name := m[1]
		// The second and fourth layouts may still carry a transaction code.
		if i == 1 || i == 3 {
			name = leadingCodeRe.ReplaceAllString(name, "")
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		return cleanName(name)
	}
	return "", false
}

func cleanName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	name = strings.TrimSpace(trailingPunctRe.ReplaceAllString(name, ""))
	name = strings.TrimSpace(longDigitRunRe.ReplaceAllString(name, ""))
	name = strings.TrimSpace(companySuffixRe.ReplaceAllString(name, ""))
	name = collapseSpaceRe.ReplaceAllString(name, " ")
	if len([]rune(name)) < minNameLen {
		return "", false
	}
	return name, true
}

func lookupString(payload map[string]interface{}, path []string) (string, bool) {
	var cur interface{} = payload
	for _, key := range path {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return "", false
		}
		cur, ok = obj[key]
		if !ok {
			return "", false
		}
	}
	s, ok := cur.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
