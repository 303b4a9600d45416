// Package report accumulates the run's JUnit XML report.
package report

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Suite names
const (
	SuiteMeta     = "_Meta"
	SuiteEquality = "Screenshot Equality"
)

// ErrAlreadyWritten is returned by every WriteTo after the first successful one
var ErrAlreadyWritten = errors.New("report already written")

// Case is one report entry
type Case struct {
	ClassName string
	Name      string
	Duration  time.Duration

	// Failure, when set, marks the case failed with this message
	Failure string

	// Attachment is a file path linked to the case (the diff image of a mismatch)
	Attachment string
}

// Failed reports whether the case is a failure
func (c Case) Failed() bool {
	return c.Failure != ""
}

type suite struct {
	name   string
	sorted bool
	cases  []Case
}

// Builder is a concurrency-safe, append-only report accumulator
type Builder struct {
	mu      sync.Mutex
	runID   string
	started time.Time
	suites  []*suite
	written bool
}

// NewBuilder creates a builder with the meta suite (insertion order) and the
// equality suite (sorted by class name and viewport) declared.
func NewBuilder(runID string) *Builder {
	b := &Builder{runID: runID, started: time.Now()}
	b.suites = []*suite{
		{name: SuiteMeta},
		{name: SuiteEquality, sorted: true},
	}
	return b
}

func (b *Builder) suite(name string) *suite {
	for _, s := range b.suites {
		if s.name == name {
			return s
		}
	}
	s := &suite{name: name}
	b.suites = append(b.suites, s)
	return s
}

// Add appends a case to the named suite, creating the suite if needed
func (b *Builder) Add(suiteName string, c Case) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.suite(suiteName)
	s.cases = append(s.cases, c)
}

// Pass records a passing meta case
func (b *Builder) Pass(name string) {
	b.Add(SuiteMeta, Case{Name: name})
}

// Fail records a failing meta case
func (b *Builder) Fail(name, message string) {
	if message == "" {
		message = "failed"
	}
	b.Add(SuiteMeta, Case{Name: name, Failure: message})
}

// Counts returns the total and failed number of cases
func (b *Builder) Counts() (total, failed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.suites {
		for _, c := range s.cases {
			total++
			if c.Failed() {
				failed++
			}
		}
	}
	return total, failed
}

// Cases returns a copy of the cases of one suite
func (b *Builder) Cases(suiteName string) []Case {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.suites {
		if s.name == suiteName {
			return append([]Case(nil), s.cases...)
		}
	}
	return nil
}

// WriteTo writes the report to path. It succeeds at most once per builder.
func (b *Builder) WriteTo(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.written {
		return ErrAlreadyWritten
	}

	data, err := xml.MarshalIndent(b.document(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append([]byte(xml.Header), data...)
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	b.written = true
	return nil
}

func (b *Builder) document() junitTestSuites {
	elapsed := time.Since(b.started)
	doc := junitTestSuites{
		Name: "vizard",
		Time: seconds(elapsed),
	}

	for _, s := range b.suites {
		if len(s.cases) == 0 {
			continue
		}

		cases := append([]Case(nil), s.cases...)
		if s.sorted {
			sort.SliceStable(cases, func(i, j int) bool {
				if cases[i].ClassName != cases[j].ClassName {
					return cases[i].ClassName < cases[j].ClassName
				}
				return cases[i].Name < cases[j].Name
			})
		}

		js := junitTestSuite{
			Name:      s.name,
			Timestamp: b.started.UTC().Format("2006-01-02T15:04:05"),
			Time:      seconds(elapsed),
		}
		if b.runID != "" {
			js.Properties = []junitProperty{{Name: "vizard.run_id", Value: b.runID}}
		}

		for _, c := range cases {
			jc := junitTestCase{
				ClassName: c.ClassName,
				Name:      c.Name,
			}
			if c.Duration > 0 {
				jc.Time = seconds(c.Duration)
			}
			if c.Failed() {
				jc.Failure = &junitFailure{Message: c.Failure, Type: "failure"}
				js.Failures++
			}
			if c.Attachment != "" {
				jc.SystemOut = "[[ATTACHMENT|" + c.Attachment + "]]"
			}
			js.Cases = append(js.Cases, jc)
		}
		js.Tests = len(js.Cases)

		doc.Tests += js.Tests
		doc.Failures += js.Failures
		doc.Suites = append(doc.Suites, js)
	}
	return doc
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
