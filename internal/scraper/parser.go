package scraper

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/lgfreitas/eproc-monitor/pkg/logger"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// deadlineHighlightColor is the rendered background the portal uses to flag
// an event that opened a response deadline
const deadlineHighlightColor = "rgb(255, 245, 189)"

var (
	// CNJ docket format: NNNNNNN-NN.NNNN.N.NN.NNNN
	docketRe = regexp.MustCompile(`\d{7}-\d{2}\.\d{4}\.\d\.\d{2}\.\d{4}`)

	// CPF or CNPJ, with or without punctuation
	taxIDRe = regexp.MustCompile(`\d{2}\.?\d{3}\.?\d{3}/?\d{4}-?\d{2}|\d{3}\.?\d{3}\.?\d{3}-?\d{2}`)

	// OAB-style registration number: two letters plus 5-6 digits
	registrationRe = regexp.MustCompile(`\b[A-Z]{2}\d{5,6}\b`)

	// Cross-reference in event descriptions
	refEventRe = regexp.MustCompile(`(?i)refere-?\s*se\s+ao\s+evento\s+(\d+)`)

	leadingDigitsRe = regexp.MustCompile(`^\s*(\d+)`)
	multiSpaceRe    = regexp.MustCompile(`\s{2,}`)
	dateRe          = regexp.MustCompile(datePattern)

	attachmentURLRe  = regexp.MustCompile(`(?i)acao=(?:acessar_documento|documento|minuta_imprimir)|\.pdf\b|\.docx?\b|\.odt\b`)
	attachmentTextRe = regexp.MustCompile(`^(?:PET|DOC|ANEXO|SENT|DESP|DECIS|CERT|OF[IÍ]C|LAUDO|EDITAL|CONTES|PROCUR|ATOORD)`)
	documentClickRe  = regexp.MustCompile(`(?i)abrirDocumento|acessarDocumento|infraAbrirJanela`)
)

const datePattern = `\d{2}/\d{2}/\d{4}(?:\s+\d{2}:\d{2}(?::\d{2})?)?`

// Labeled fields of a deadline-list row
var (
	courtLabelRe   = regexp.MustCompile(`(?i)ju[ií]zo\s*:?\s*([^\n]+)`)
	classLabelRe   = regexp.MustCompile(`(?i)classe\s*:?\s*([^\n]+)`)
	subjectLabelRe = regexp.MustCompile(`(?i)assunto\s*:?\s*([^\n]+)`)
	eventLabelRe   = regexp.MustCompile(`(?i)evento\s*:?\s*([^\n]+)`)
	daysLabelRe    = regexp.MustCompile(`(?i)prazo\s*:?\s*(\d+)`)
	noticeLabelRe  = regexp.MustCompile(`(?i)intima[çc][ãa]o\s*:?\s*(` + datePattern + `)`)
	startLabelRe   = regexp.MustCompile(`(?i)in[ií]cio(?:\s+do\s+prazo)?\s*:?\s*(` + datePattern + `)`)
	endLabelRe     = regexp.MustCompile(`(?i)(?:final|t[ée]rmino)(?:\s+do\s+prazo)?\s*:?\s*(` + datePattern + `)`)
)

// Role keyword sets. The portal labels the same side with several synonyms
// depending on the case class.
var (
	plaintiffRoles = []string{"AUTOR", "EXEQUENTE", "REQUERENTE", "EMBARGANTE", "IMPETRANTE", "RECLAMANTE"}
	defendantRoles = []string{"REU", "RE", "EXECUTADO", "REQUERIDO", "EMBARGADO", "IMPETRADO", "RECLAMADO"}
)

// professionalSuffixes are association suffixes stripped before comparing an
// advocate name against a party or representative name
var professionalSuffixes = []string{
	"SOCIEDADE INDIVIDUAL DE ADVOCACIA",
	"SOCIEDADE DE ADVOGADOS",
	"ADVOGADOS ASSOCIADOS",
	"ADVOCACIA",
}

// LinkRef is one anchor found inside a table row
type LinkRef struct {
	Text    string
	Href    string
	OnClick string
}

// TableRow is a DOM-free snapshot of one table row, collected once from the
// page so all parsing below stays pure
type TableRow struct {
	Cells       []string
	Links       []LinkRef
	Highlighted bool
	Raw         string
}

// ParsedCase is one list-extraction result before persistence
type ParsedCase struct {
	Docket          string
	CourtCode       string
	PlaintiffName   string
	PlaintiffTaxID  string
	DefendantName   string
	DefendantTaxID  string
	RepresentedSide string
	CaseClass       string
	Subject         string
	DeadlineEvent   string
	DeadlineDays    int
	NoticeSentAt    *time.Time
	DeadlineStartAt *time.Time
	DeadlineEndAt   *time.Time
	RawCapture      string
}

// Attachment references a document linked from an event row
type Attachment struct {
	Name string
	Kind string
	URL  string
}

// ParsedEvent is one procedural-history row
type ParsedEvent struct {
	Seq             *int
	Actor           string
	OccurredAt      *time.Time
	Description     string
	Attachments     []Attachment
	IsDeadlineEvent bool
	RefEvent        *int
}

// Representation holds representative names per side from the detail view
type Representation struct {
	PlaintiffReps []string
	DefendantReps []string
}

// Parser turns collected table rows into typed records. Every field is
// best-effort: a field that cannot be parsed is left zero and logged, the
// record survives.
type Parser struct {
	logger *logger.Logger
}

func NewParser(log *logger.Logger) *Parser {
	return &Parser{logger: log}
}

// ExtractDocket returns the CNJ docket number contained in s, or ""
func ExtractDocket(s string) string {
	return docketRe.FindString(s)
}

// ParseListRows parses the open-deadline table. Rows without a docket number
// are malformed or header rows and are dropped.
func (p *Parser) ParseListRows(rows []TableRow, advocateName string) []ParsedCase {
	var cases []ParsedCase
	for _, row := range rows {
		c, ok := p.parseListRow(row, advocateName)
		if !ok {
			continue
		}
		cases = append(cases, *c)
	}
	return cases
}

func (p *Parser) parseListRow(row TableRow, advocateName string) (*ParsedCase, bool) {
	text := row.Raw
	if text == "" {
		text = strings.Join(row.Cells, "\n")
	}

	docket := ExtractDocket(text)
	if docket == "" {
		return nil, false
	}

	c := &ParsedCase{Docket: docket, RawCapture: text}

	c.CourtCode = matchLabel(text, courtLabelRe)
	c.CaseClass = matchLabel(text, classLabelRe)
	c.Subject = matchLabel(text, subjectLabelRe)
	c.DeadlineEvent = matchLabel(text, eventLabelRe)

	if days := matchLabel(text, daysLabelRe); days != "" {
		if n, err := strconv.Atoi(days); err == nil {
			c.DeadlineDays = n
		}
	}

	c.NoticeSentAt = p.matchDate(text, noticeLabelRe)
	c.DeadlineStartAt = p.matchDate(text, startLabelRe)
	c.DeadlineEndAt = p.matchDate(text, endLabelRe)

	c.PlaintiffName, c.PlaintiffTaxID = extractParty(text, plaintiffRoles)
	c.DefendantName, c.DefendantTaxID = extractParty(text, defendantRoles)

	if c.PlaintiffName == "" && c.DefendantName == "" {
		p.logger.Warn("List row has docket but no parties", "docket", docket)
	}

	// The represented side can sometimes be read straight off the list when
	// the advocate (or their association) is named as a party representative
	// inline. Otherwise it stays unknown and is resolved by detail
	// extraction.
	switch {
	case MatchesAdvocate(c.PlaintiffName, advocateName):
		c.RepresentedSide = "plaintiff"
	case MatchesAdvocate(c.DefendantName, advocateName):
		c.RepresentedSide = "defendant"
	}

	return c, true
}

// extractParty finds the first line labeled with one of the role keywords
// and returns the party name and optional tax id. Government parties carry
// no tax id.
func extractParty(text string, roles []string) (name, taxID string) {
	for _, line := range strings.Split(text, "\n") {
		folded := Fold(line)
		if matchedRole(folded, roles) == "" {
			continue
		}
		rest := line
		if idx := strings.Index(line, ":"); idx >= 0 {
			rest = line[idx+1:]
		} else if fields := strings.Fields(line); len(fields) > 1 {
			// Label without a colon: drop the role keyword token
			rest = strings.Join(fields[1:], " ")
		} else {
			rest = ""
		}
		rest = strings.TrimSpace(rest)
		if rest == "" {
			continue
		}
		if id := taxIDRe.FindString(rest); id != "" {
			taxID = id
			rest = strings.TrimSpace(taxIDRe.ReplaceAllString(rest, ""))
			rest = strings.Trim(rest, " -()")
		}
		name = strings.TrimSpace(multiSpaceRe.ReplaceAllString(rest, " "))
		return name, taxID
	}
	return "", ""
}

// matchedRole reports which role keyword labels the folded line, if any.
// The keyword must appear at the start of the line to avoid matching role
// words inside free text.
func matchedRole(foldedLine string, roles []string) string {
	trimmed := strings.TrimLeft(foldedLine, " \t")
	for _, role := range roles {
		if strings.HasPrefix(trimmed, role) {
			next := trimmed[len(role):]
			if next == "" || !unicode.IsLetter(rune(next[0])) {
				return role
			}
		}
	}
	return ""
}

// ParseEventRows parses the procedural-history table
func (p *Parser) ParseEventRows(rows []TableRow) []ParsedEvent {
	var events []ParsedEvent
	for _, row := range rows {
		ev, ok := p.parseEventRow(row)
		if !ok {
			continue
		}
		events = append(events, *ev)
	}
	return events
}

func (p *Parser) parseEventRow(row TableRow) (*ParsedEvent, bool) {
	if len(row.Cells) == 0 {
		return nil, false
	}

	ev := &ParsedEvent{IsDeadlineEvent: row.Highlighted}

	if m := leadingDigitsRe.FindStringSubmatch(row.Cells[0]); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			ev.Seq = &n
		}
	}
	if ev.Seq == nil {
		p.logger.Debug("Event row without sequence number", "cell", row.Cells[0])
	}

	// Layout: number, timestamp, description, actor, documents. Older
	// deployments merge columns, so fall back to scanning.
	if len(row.Cells) >= 3 {
		ev.Description = strings.TrimSpace(row.Cells[2])
	} else {
		ev.Description = strings.TrimSpace(strings.Join(row.Cells, " "))
	}
	if len(row.Cells) >= 4 {
		ev.Actor = strings.TrimSpace(row.Cells[3])
	}

	for _, cell := range row.Cells {
		if d := dateRe.FindString(cell); d != "" {
			if t, err := p.parseDate(d); err == nil {
				ev.OccurredAt = &t
				break
			}
		}
	}

	if m := refEventRe.FindStringSubmatch(ev.Description); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			ev.RefEvent = &n
		}
	}

	// Attachment links can live in any cell of the row, not just the
	// documents column
	for _, link := range row.Links {
		if !IsAttachmentLink(link) {
			continue
		}
		ev.Attachments = append(ev.Attachments, Attachment{
			Name: attachmentName(link),
			Kind: attachmentKind(link),
			URL:  link.Href,
		})
	}

	return ev, true
}

// IsAttachmentLink decides whether an anchor references a document: by URL
// pattern, by visible document-type prefix, or by a document-opening inline
// handler
func IsAttachmentLink(link LinkRef) bool {
	if attachmentURLRe.MatchString(link.Href) {
		return true
	}
	if attachmentTextRe.MatchString(strings.ToUpper(strings.TrimSpace(link.Text))) {
		return true
	}
	return documentClickRe.MatchString(link.OnClick)
}

func attachmentName(link LinkRef) string {
	name := strings.TrimSpace(link.Text)
	if name == "" {
		if idx := strings.LastIndex(link.Href, "/"); idx >= 0 {
			name = link.Href[idx+1:]
		}
	}
	if name == "" {
		name = "documento"
	}
	return name
}

func attachmentKind(link LinkRef) string {
	lower := strings.ToLower(link.Href)
	switch {
	case strings.Contains(lower, ".pdf"):
		return "application/pdf"
	case strings.Contains(lower, ".doc"):
		return "application/msword"
	case strings.Contains(lower, ".odt"):
		return "application/vnd.oasis.opendocument.text"
	default:
		return ""
	}
}

// DeadlineBase returns the smallest event number referenced by any
// deadline-flagged event, or nil when no deadline event carries a reference.
// A case can accumulate several independent deadline notices pointing at
// different base events; the minimum keeps the selected range a superset of
// every notice's range.
func DeadlineBase(events []ParsedEvent) *int {
	var base *int
	for _, ev := range events {
		if !ev.IsDeadlineEvent || ev.RefEvent == nil {
			continue
		}
		if base == nil || *ev.RefEvent < *base {
			v := *ev.RefEvent
			base = &v
		}
	}
	return base
}

// FilterFromBase keeps events with sequence number >= base. A nil base means
// no deadline event referenced anything: keep everything. Events whose
// sequence failed to parse cannot be correlated and are dropped when a base
// applies.
func FilterFromBase(events []ParsedEvent, base *int) []ParsedEvent {
	if base == nil {
		return events
	}
	var kept []ParsedEvent
	for _, ev := range events {
		if ev.Seq != nil && *ev.Seq >= *base {
			kept = append(kept, ev)
		}
	}
	return kept
}

// RelevantDocumentEvents selects the events whose attachments should be
// downloaded: sequence number at or above the minimum deadline base, with at
// least one attachment, ascending
func RelevantDocumentEvents(events []ParsedEvent) []ParsedEvent {
	base := DeadlineBase(events)
	var relevant []ParsedEvent
	for _, ev := range events {
		if ev.Seq == nil || len(ev.Attachments) == 0 {
			continue
		}
		if base != nil && *ev.Seq < *base {
			continue
		}
		relevant = append(relevant, ev)
	}
	sort.Slice(relevant, func(i, j int) bool {
		return *relevant[i].Seq < *relevant[j].Seq
	})
	return relevant
}

// ParseRepresentatives classifies the columns of a parties-and-
// representatives table by header keywords and extracts representative
// names from registration-numbered lines
func (p *Parser) ParseRepresentatives(headers []string, columns [][]string) Representation {
	var rep Representation
	for i, header := range headers {
		if i >= len(columns) {
			break
		}
		side := classifySide(header)
		if side == "" {
			continue
		}
		for _, cellText := range columns[i] {
			for _, line := range strings.Split(cellText, "\n") {
				if !registrationRe.MatchString(strings.ToUpper(line)) {
					continue
				}
				name := cleanRepresentativeLine(line)
				if name == "" {
					continue
				}
				if side == "plaintiff" {
					rep.PlaintiffReps = append(rep.PlaintiffReps, name)
				} else {
					rep.DefendantReps = append(rep.DefendantReps, name)
				}
			}
		}
	}
	return rep
}

// ScanRepresentatives is the fallback strategy when no representatives table
// is found: walk the whole page line by line, tracking the current side from
// role-keyword lines and collecting registration-numbered lines under it
func (p *Parser) ScanRepresentatives(pageText string) Representation {
	var rep Representation
	side := ""
	for _, line := range strings.Split(pageText, "\n") {
		folded := Fold(line)
		switch {
		case matchedRole(folded, plaintiffRoles) != "":
			side = "plaintiff"
		case matchedRole(folded, defendantRoles) != "":
			side = "defendant"
		}
		if side == "" || !registrationRe.MatchString(strings.ToUpper(line)) {
			continue
		}
		name := cleanRepresentativeLine(line)
		if name == "" {
			continue
		}
		if side == "plaintiff" {
			rep.PlaintiffReps = append(rep.PlaintiffReps, name)
		} else {
			rep.DefendantReps = append(rep.DefendantReps, name)
		}
	}
	return rep
}

// classifySide maps a column header to a party side via keyword sets
func classifySide(header string) string {
	folded := Fold(header)
	for _, role := range plaintiffRoles {
		if strings.Contains(folded, role) {
			return "plaintiff"
		}
	}
	for _, role := range defendantRoles {
		if strings.Contains(folded, " "+role) || strings.HasPrefix(folded, role) {
			return "defendant"
		}
	}
	return ""
}

// cleanRepresentativeLine strips the registration number and collapses
// multi-space-separated segments to the last one, which is where the portal
// renders the name
func cleanRepresentativeLine(line string) string {
	line = registrationRe.ReplaceAllString(strings.ToUpper(strings.TrimSpace(line)), "")
	line = strings.Trim(line, " -–()")
	segments := multiSpaceRe.Split(strings.TrimSpace(line), -1)
	if len(segments) == 0 {
		return ""
	}
	return strings.TrimSpace(segments[len(segments)-1])
}

// MatchSide reports which side's representative list contains the configured
// advocate, or "" when neither does
func MatchSide(rep Representation, advocateName string) string {
	for _, name := range rep.PlaintiffReps {
		if MatchesAdvocate(name, advocateName) {
			return "plaintiff"
		}
	}
	for _, name := range rep.DefendantReps {
		if MatchesAdvocate(name, advocateName) {
			return "defendant"
		}
	}
	return ""
}

// MatchesAdvocate compares a candidate name against the configured advocate,
// case- and diacritics-insensitive, tolerating professional-association
// suffixes on either side
func MatchesAdvocate(candidate, advocateName string) bool {
	if candidate == "" || advocateName == "" {
		return false
	}
	c := stripSuffixes(Fold(candidate))
	a := stripSuffixes(Fold(advocateName))
	if c == "" || a == "" {
		return false
	}
	return strings.Contains(c, a) || strings.Contains(a, c)
}

func stripSuffixes(folded string) string {
	for _, suffix := range professionalSuffixes {
		folded = strings.TrimSuffix(strings.TrimSpace(folded), suffix)
	}
	return strings.TrimSpace(folded)
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold uppercases and strips diacritics for comparison
func Fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		out = s
	}
	return strings.ToUpper(strings.TrimSpace(multiSpaceRe.ReplaceAllString(out, " ")))
}

func matchLabel(text string, re *regexp.Regexp) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func (p *Parser) matchDate(text string, re *regexp.Regexp) *time.Time {
	s := matchLabel(text, re)
	if s == "" {
		return nil
	}
	t, err := p.parseDate(s)
	if err != nil {
		p.logger.Debug("Unparseable date", "value", s)
		return nil
	}
	return &t
}

// parseDate parses the portal's date renderings
func (p *Parser) parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(multiSpaceRe.ReplaceAllString(s, " "))
	formats := []string{
		"02/01/2006 15:04:05",
		"02/01/2006 15:04",
		"02/01/2006",
		"02-01-2006",
		"2006-01-02",
	}
	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
