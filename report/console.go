package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/brunobiangulo/deckport/store"
	"github.com/brunobiangulo/deckport/uploader"
)

// Printer renders reports as console text with ✅/❌ status markers.
// Colours follow color.NoColor.
type Printer struct {
	w    io.Writer
	ok   *color.Color
	bad  *color.Color
	warn *color.Color
	head *color.Color
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{
		w:    w,
		ok:   color.New(color.FgGreen),
		bad:  color.New(color.FgRed),
		warn: color.New(color.FgYellow),
		head: color.New(color.FgCyan, color.Bold),
	}
}

func (p *Printer) heading(format string, args ...any) {
	p.head.Fprintf(p.w, format+"\n", args...)
}

func (p *Printer) status(ok bool, format string, args ...any) {
	if ok {
		p.ok.Fprintf(p.w, "✅ "+format+"\n", args...)
		return
	}
	p.bad.Fprintf(p.w, "❌ "+format+"\n", args...)
}

func (p *Printer) Warning(format string, args ...any) {
	p.warn.Fprintf(p.w, "⚠ "+format+"\n", args...)
}

// Extracted prints one extraction outcome.
func (p *Printer) Extracted(deck, jsonPath string, err error) {
	if err != nil {
		p.status(false, "%s: %v", deck, err)
		return
	}
	p.status(true, "%s -> %s", deck, jsonPath)
}

// Wrote confirms a generated file.
func (p *Printer) Wrote(what, path string) {
	if path == "-" {
		path = "stdout"
	}
	p.status(true, "%s written to %s", what, path)
}

func (p *Printer) Deleted(lessonID string) {
	p.status(true, "deleted %s", lessonID)
}

func (p *Printer) Uploaded(r *uploader.Result) {
	p.status(true, "uploaded %s as %s", r.Title, r.LessonID)
	fmt.Fprintf(p.w, "  slides: %d  images uploaded: %d  images missing: %d\n", r.Slides, r.ImagesUploaded, r.ImagesMissing)
	if r.ModuleLinked {
		fmt.Fprintln(p.w, "  linked to module")
	}
	for _, w := range r.Warnings {
		p.Warning("%s", w)
	}
}

func (p *Printer) Presence(r *PresenceReport) {
	p.heading("All lessons (%d):", len(r.Lessons))
	for _, l := range r.Lessons {
		fmt.Fprintf(p.w, "  %s  %s\n", l.ID, l.Title)
	}
	if len(r.Checks) == 0 {
		return
	}
	fmt.Fprintln(p.w)
	p.heading("Requested lessons:")
	for _, c := range r.Checks {
		if c.Found {
			p.status(true, "%s found (ID: %s, %d slides)", c.Title, c.LessonID, c.Slides)
		} else {
			p.status(false, "%s not found", c.Title)
		}
	}
}

func (p *Printer) ImageAudit(r *ImageAuditReport) {
	for _, l := range r.Lessons {
		if !l.Found {
			p.status(false, "lesson %s not found", l.Query)
			continue
		}
		p.heading("%s (%s), %d slides", l.Title, l.LessonID, l.Slides)
		if len(l.Images) == 0 {
			fmt.Fprintln(p.w, "  no images")
		}
		for _, img := range l.Images {
			p.status(img.InStorage, "slide %d: %s", img.SlideNumber, img.Filename)
			fmt.Fprintf(p.w, "     url: %s\n     path: %s\n", img.URL, img.StoragePath)
		}
	}
	fmt.Fprintln(p.w)
	p.heading("Summary")
	fmt.Fprintf(p.w, "  images: %d\n", r.Total)
	p.status(true, "in storage: %d", r.InStorage)
	p.status(r.Missing == 0, "missing: %d", r.Missing)
}

func (p *Printer) Structure(cols []store.Collection) {
	for _, c := range cols {
		p.printCollection(c, 0)
	}
}

func (p *Printer) printCollection(c store.Collection, depth int) {
	indent := strings.Repeat("  ", depth)
	p.head.Fprintf(p.w, "%s%s (%d documents)\n", indent, c.Name, c.Count)
	fmt.Fprintf(p.w, "%s  fields: %s\n", indent, strings.Join(c.Fields, ", "))
	if len(c.SampleIDs) > 0 {
		fmt.Fprintf(p.w, "%s  sample: %s\n", indent, strings.Join(c.SampleIDs, ", "))
	}
	for _, sub := range c.SubCollections {
		p.printCollection(sub, depth+1)
	}
}

func (p *Printer) Bucket(st *BucketStatus) {
	p.heading("Bucket %s", st.Name)
	fmt.Fprintf(p.w, "  root: %s\n", st.Root)
	p.status(st.Exists, "exists")
	if st.Exists {
		fmt.Fprintf(p.w, "  objects: %d\n", st.Objects)
	}
}

func (p *Printer) Storage(entries []StorageEntry) {
	p.heading("%d objects", len(entries))
	for _, e := range entries {
		fmt.Fprintf(p.w, "%s\n  size: %.2f KB  type: %s\n  url: %s\n", e.Key, e.SizeKB, e.ContentType, e.URL)
	}
}

func (p *Printer) Lessons(lessons []store.Lesson) {
	p.heading("%d lessons", len(lessons))
	for _, l := range lessons {
		date := UploadDate(l.ID)
		if date == "" {
			date = "unknown"
		}
		fmt.Fprintf(p.w, "  %s  %-30s  %s  %s\n", l.ID, l.Title, l.Code, date)
	}
}

func (p *Printer) Lesson(l *store.Lesson, slides []store.Slide) {
	p.heading("%s (%s)", l.Title, l.ID)
	fmt.Fprintf(p.w, "  code: %s  school: %s\n", l.Code, l.SchoolCode)
	if l.ModuleID != "" {
		fmt.Fprintf(p.w, "  module: %s\n", l.ModuleID)
	}
	for _, sl := range slides {
		fmt.Fprintf(p.w, "  [%d] %s\n", sl.SlideNumber, sl.Title)
		for _, c := range sl.Content {
			fmt.Fprintf(p.w, "      %s\n", strings.ReplaceAll(c, "\n", "\n      "))
		}
		for _, img := range sl.Images {
			fmt.Fprintf(p.w, "      image: %s\n", img.Filename)
		}
	}
}
