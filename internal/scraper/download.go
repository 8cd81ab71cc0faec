package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/lgfreitas/eproc-monitor/internal/cache"
	"github.com/lgfreitas/eproc-monitor/internal/config"
	"github.com/lgfreitas/eproc-monitor/internal/database"
	"github.com/lgfreitas/eproc-monitor/internal/storage"
	"github.com/lgfreitas/eproc-monitor/pkg/logger"
)

var (
	nonDigitRe      = regexp.MustCompile(`\D`)
	unsafeFileRe    = regexp.MustCompile(`[^\p{L}\p{N}._\-]+`)
	a4Width, a4High = 8.27, 11.69
)

// capture is the raw result of one attachment fetch
type capture struct {
	data        []byte
	contentType string
}

// Fetcher downloads one attachment at a time in an isolated tab, de-duplicated
// by deterministic storage path so each document is fetched at most once
// across all runs
type Fetcher struct {
	cfg    *config.Config
	store  *database.Store
	blobs  *storage.BlobStore
	paths  *cache.PathCache
	logger *logger.Logger
	client *http.Client
}

func NewFetcher(cfg *config.Config, store *database.Store, blobs *storage.BlobStore, paths *cache.PathCache, log *logger.Logger) *Fetcher {
	client := &http.Client{Timeout: cfg.DownloadTimeout}
	if cfg.ProxyURL != "" {
		if proxyURL, err := url.Parse(cfg.ProxyURL); err == nil {
			if cfg.ProxyUser != "" {
				proxyURL.User = url.UserPassword(cfg.ProxyUser, cfg.ProxyPass)
			}
			client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}
	return &Fetcher{cfg: cfg, store: store, blobs: blobs, paths: paths, logger: log, client: client}
}

// FetchCaseDocuments downloads every relevant attachment of a case. Failures
// are isolated per attachment. Returns how many documents were stored and
// how many were skipped as already downloaded.
func (f *Fetcher) FetchCaseDocuments(ctx context.Context, sess *Session, docket string, events []ParsedEvent) (stored, skipped int) {
	relevant := RelevantDocumentEvents(events)
	for _, ev := range relevant {
		for _, att := range ev.Attachments {
			path := StoragePath(docket, *ev.Seq, att.Name)

			err := f.fetchOne(ctx, sess, docket, ev, att, path)
			switch {
			case err == nil:
				stored++
			case isAlreadyStored(err):
				skipped++
			default:
				f.logger.Warn("Attachment download failed", "docket", docket,
					"event", *ev.Seq, "file", att.Name, "error", err)
			}
		}
	}
	if stored > 0 || skipped > 0 {
		f.logger.Info("Case documents processed", "docket", docket, "stored", stored, "skipped", skipped)
	}
	return stored, skipped
}

func isAlreadyStored(err error) bool {
	return errors.Is(err, ErrAlreadyStored)
}

func (f *Fetcher) fetchOne(ctx context.Context, sess *Session, docket string, ev ParsedEvent, att Attachment, path string) error {
	// De-duplication happens before any network traffic: cache fast-path,
	// then the record store as the authority
	if f.paths.Has(path) {
		return fmt.Errorf("%w: %s", ErrAlreadyStored, path)
	}
	exists, err := f.store.DocumentExists(path)
	if err != nil {
		return fmt.Errorf("dedup check failed: %w", err)
	}
	if exists {
		f.paths.Add(path)
		return fmt.Errorf("%w: %s", ErrAlreadyStored, path)
	}

	got, err := f.fetchAttachment(ctx, sess, att)
	if err != nil {
		return err
	}
	if got == nil || len(got.data) == 0 {
		return ErrEmptyCapture
	}

	if err := f.blobs.Upload(ctx, path, got.data, got.contentType); err != nil {
		return err
	}
	signedURL, err := f.blobs.SignedURL(ctx, path, f.cfg.SignedURLTTL)
	if err != nil {
		f.logger.Warn("Failed to issue signed URL", "path", path, "error", err)
	}

	doc := &database.Document{
		StoragePath: path,
		Docket:      docket,
		EventSeq:    *ev.Seq,
		EventTime:   ev.OccurredAt,
		FileName:    SanitizeFileName(att.Name),
		ContentType: got.contentType,
		ByteSize:    int64(len(got.data)),
		SignedURL:   signedURL,
	}
	if err := f.store.InsertDocument(doc); err != nil {
		return err
	}
	f.paths.Add(path)
	sess.HumanDelay()
	return nil
}

// fetchAttachment opens an auxiliary tab, intercepts the HTTP response
// matching the attachment URL, and captures its bytes and declared content
// kind. The tab shares the browser context, so the authenticated session's
// cookies ride along. When the portal serves an HTML viewer instead of a raw
// file, the tab is rendered to an A4 document as a fallback.
func (f *Fetcher) fetchAttachment(ctx context.Context, sess *Session, att Attachment) (*capture, error) {
	sess.armProxyAuth()

	page, err := sess.Browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open download tab: %w", err)
	}
	defer func() { _ = page.Close() }()
	page = page.Context(ctx)
	sess.AcceptDialogs(page)

	var mu sync.Mutex
	var matched, document *capture

	router := page.HijackRequests()
	err = router.Add("*", "", func(h *rod.Hijack) {
		if loadErr := h.LoadResponse(f.client, true); loadErr != nil {
			return
		}
		body := []byte(h.Response.Body())
		if len(body) == 0 {
			return
		}
		c := &capture{
			data:        body,
			contentType: h.Response.Headers().Get("Content-Type"),
		}
		mu.Lock()
		defer mu.Unlock()
		switch {
		case urlMatchesAttachment(h.Request.URL().String(), att.URL):
			matched = c
		case h.Request.Type() == proto.NetworkResourceTypeDocument && document == nil:
			// Keep the final navigation response as a fallback
			document = c
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to install response hook: %w", err)
	}
	go router.Run()
	defer func() { _ = router.Stop() }()

	if err := page.Timeout(f.cfg.DownloadTimeout).Navigate(att.URL); err != nil {
		return nil, fmt.Errorf("failed to navigate to attachment: %w", err)
	}
	if err := page.Timeout(f.cfg.DownloadTimeout).WaitLoad(); err != nil {
		f.logger.Debug("Attachment tab load timed out, using whatever was captured", "url", att.URL)
	}

	// Give late responses a moment to land before reading the captures
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := matched != nil
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}

	mu.Lock()
	got := matched
	if got == nil {
		got = document
	}
	mu.Unlock()

	if got == nil {
		return nil, nil
	}

	if got.contentType == "" {
		got.contentType = mimetype.Detect(got.data).String()
	}
	if strings.Contains(got.contentType, "text/html") {
		return f.renderPage(page)
	}
	return got, nil
}

// renderPage prints the current tab to a fixed-format A4 document
func (f *Fetcher) renderPage(page *rod.Page) (*capture, error) {
	stream, err := page.PDF(&proto.PagePrintToPDF{
		PaperWidth:      &a4Width,
		PaperHeight:     &a4High,
		PrintBackground: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered page: %w", err)
	}
	return &capture{data: data, contentType: "application/pdf"}, nil
}

// urlMatchesAttachment compares request and attachment URLs ignoring scheme
// and host casing; the portal sometimes rewrites hosts between panel and
// document service
func urlMatchesAttachment(requestURL, attachmentURL string) bool {
	if requestURL == attachmentURL {
		return true
	}
	rq, err1 := url.Parse(requestURL)
	at, err2 := url.Parse(attachmentURL)
	if err1 != nil || err2 != nil {
		return false
	}
	return rq.Path == at.Path && rq.RawQuery == at.RawQuery
}

// StoragePath derives the deterministic object path for an attachment:
// {docketDigits}/evento_{eventNumber}/{sanitizedFileName}
func StoragePath(docket string, eventSeq int, fileName string) string {
	return fmt.Sprintf("%s/evento_%d/%s",
		nonDigitRe.ReplaceAllString(docket, ""), eventSeq, SanitizeFileName(fileName))
}

// SanitizeFileName makes a portal-supplied name safe for object storage
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	name = unsafeFileRe.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "documento"
	}
	if len(name) > 120 {
		name = name[:120]
	}
	return name
}

// MarshalAttachments serializes attachment references for the event record's
// audit column
func MarshalAttachments(atts []Attachment) string {
	if len(atts) == 0 {
		return ""
	}
	data, err := json.Marshal(atts)
	if err != nil {
		return ""
	}
	return string(data)
}
