// Package zonefile is the persistent store for a domain's association
// records. It loads the zone text into a line-preserving model, applies the
// rollover mutations to the recognized TLSA records, and writes the whole
// file back atomically. Lines it does not manage pass through byte-for-byte.
package zonefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/yuriy-kovalchuk/yk-dane-manager/internal/dane"
)

// RetireMarker is the in-band comment token tagging an association as
// retiring during a rollover window. It is the only rollover state persisted
// anywhere.
const RetireMarker = "dane-retire"

// ErrMalformed reports a zone file this store refuses to mutate.
var ErrMalformed = errors.New("zonefile: malformed zone")

var (
	serialCommentRe = regexp.MustCompile(`^(\s*)(\d+)(\s*;\s*[Ss]erial\b.*)$`)
	bareNumberRe    = regexp.MustCompile(`^(\s*)(\d+)(\s*(?:;.*)?)$`)
	retireMarkerRe  = regexp.MustCompile(`;\s*` + RetireMarker + `\s*$`)
)

type line struct {
	raw    string
	rec    *dane.Record // non-nil when raw parses as a TLSA record
	serial bool
}

// File is a zone file loaded into memory.
type File struct {
	path  string
	mode  os.FileMode
	lines []line

	serial       uint32
	serialPrefix string
	serialSuffix string
}

// Load reads and parses the zone file at path. The serial must be present,
// either on a line carrying a "; serial" comment or as the first bare integer
// inside the SOA parentheses; anything else is ErrMalformed.
func Load(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	f := &File{path: path, mode: info.Mode().Perm()}
	for _, raw := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		f.lines = append(f.lines, line{raw: raw, rec: parseTLSA(raw)})
	}
	if err := f.findSerial(); err != nil {
		return nil, err
	}
	return f, nil
}

// parseTLSA recognizes a TLSA record line, returning nil for anything else.
// The record part is validated through the DNS library so TTLs and spacing
// variations are tolerated; the raw line is still what gets persisted.
func parseTLSA(raw string) *dane.Record {
	if !strings.Contains(raw, "TLSA") {
		return nil
	}
	recPart := raw
	if i := strings.Index(raw, ";"); i >= 0 {
		recPart = raw[:i]
	}
	rr, err := dns.NewRR(recPart)
	if err != nil {
		return nil
	}
	tlsa, ok := rr.(*dns.TLSA)
	if !ok {
		return nil
	}
	return &dane.Record{
		Name:         tlsa.Hdr.Name,
		Usage:        tlsa.Usage,
		Selector:     tlsa.Selector,
		MatchingType: tlsa.MatchingType,
		Digest:       strings.ToLower(tlsa.Certificate),
		Retiring:     retireMarkerRe.MatchString(raw),
	}
}

func (f *File) findSerial() error {
	for i, ln := range f.lines {
		if m := serialCommentRe.FindStringSubmatch(ln.raw); m != nil {
			return f.setSerial(i, m)
		}
	}
	for i, ln := range f.lines {
		if ln.rec == nil && strings.Contains(ln.raw, "SOA") && strings.Contains(ln.raw, "(") {
			// The serial is the first SOA field, so it must be on the next line.
			if i+1 < len(f.lines) {
				if m := bareNumberRe.FindStringSubmatch(f.lines[i+1].raw); m != nil {
					return f.setSerial(i+1, m)
				}
			}
			break
		}
	}
	return fmt.Errorf("%w: serial not found in %s", ErrMalformed, f.path)
}

func (f *File) setSerial(i int, m []string) error {
	n, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: serial %q out of range in %s", ErrMalformed, m[2], f.path)
	}
	f.lines[i].serial = true
	f.serial = uint32(n)
	f.serialPrefix, f.serialSuffix = m[1], m[3]
	return nil
}

// Serial returns the currently stored serial.
func (f *File) Serial() uint32 { return f.serial }

// HasManaged reports whether any managed association exists in the zone.
func (f *File) HasManaged() bool {
	for _, ln := range f.lines {
		if ln.rec != nil && ln.rec.Managed() {
			return true
		}
	}
	return false
}

// HasManagedName reports whether a managed association exists at name.
func (f *File) HasManagedName(name string) bool {
	for _, ln := range f.lines {
		if ln.rec != nil && ln.rec.Managed() && strings.EqualFold(ln.rec.Name, name) {
			return true
		}
	}
	return false
}

// HasRetiring reports whether any managed association is tagged retiring.
func (f *File) HasRetiring() bool {
	for _, ln := range f.lines {
		if ln.rec != nil && ln.rec.Managed() && ln.rec.Retiring {
			return true
		}
	}
	return false
}

// HasActiveDigest reports whether digest is already published as an active
// managed association anywhere in the zone.
func (f *File) HasActiveDigest(digest string) bool {
	digest = strings.ToLower(digest)
	for _, ln := range f.lines {
		rec := ln.rec
		if rec != nil && rec.Managed() && !rec.Retiring && rec.Digest == digest {
			return true
		}
	}
	return false
}

// Retire re-tags the active managed association at name as retiring by
// appending the in-band marker to its existing line, preserving the line's
// original formatting. An association already retiring at name is dropped, so
// at most one retiring record remains per endpoint. Reports whether the file
// changed.
func (f *File) Retire(name string) bool {
	changed := false
	kept := f.lines[:0:0]
	for _, ln := range f.lines {
		if ln.rec != nil && ln.rec.Managed() && ln.rec.Retiring && strings.EqualFold(ln.rec.Name, name) {
			changed = true
			continue
		}
		kept = append(kept, ln)
	}
	f.lines = kept
	for i := range f.lines {
		rec := f.lines[i].rec
		if rec != nil && rec.Managed() && !rec.Retiring && strings.EqualFold(rec.Name, name) {
			rec.Retiring = true
			f.lines[i].raw += "\t; " + RetireMarker
			changed = true
		}
	}
	return changed
}

// Upsert inserts a new active managed association for name carrying digest,
// placed after the endpoint's existing records. An identical active digest is
// a no-op. Reports whether the file changed.
func (f *File) Upsert(name, digest string) bool {
	digest = strings.ToLower(digest)
	last := -1
	for i, ln := range f.lines {
		rec := ln.rec
		if rec == nil || !rec.Managed() || !strings.EqualFold(rec.Name, name) {
			continue
		}
		if !rec.Retiring && rec.Digest == digest {
			return false
		}
		last = i
	}
	rec := &dane.Record{
		Name:         name,
		Usage:        dane.ManagedUsage,
		Selector:     dane.SelectorPubKey,
		MatchingType: dane.MatchSHA256,
		Digest:       digest,
	}
	ln := line{raw: rec.Line(), rec: rec}
	if last < 0 {
		f.lines = append(f.lines, ln)
	} else {
		f.lines = append(f.lines[:last+1], append([]line{ln}, f.lines[last+1:]...)...)
	}
	return true
}

// DeleteRetiring removes every retiring-tagged managed association and
// returns the number of records removed.
func (f *File) DeleteRetiring() int {
	removed := 0
	kept := f.lines[:0:0]
	for _, ln := range f.lines {
		if ln.rec != nil && ln.rec.Managed() && ln.rec.Retiring {
			removed++
			continue
		}
		kept = append(kept, ln)
	}
	f.lines = kept
	return removed
}

// Bump advances the serial: today's date as YYYYMMDD*100 when that is ahead
// of the stored value, otherwise the stored value plus one. Repeated bumps on
// one calendar day therefore still strictly increase. Returns the new serial.
func (f *File) Bump(now time.Time) uint32 {
	y, m, d := now.Date()
	dateSerial := uint32(y*10000+int(m)*100+d) * 100
	if dateSerial > f.serial {
		f.serial = dateSerial
	} else {
		f.serial++
	}
	for i := range f.lines {
		if f.lines[i].serial {
			f.lines[i].raw = f.serialPrefix + strconv.FormatUint(uint64(f.serial), 10) + f.serialSuffix
		}
	}
	return f.serial
}

// Save writes the zone back through a temporary file in the same directory
// followed by a rename, so an interrupted write never leaves a partial zone.
func (f *File) Save() error {
	var b strings.Builder
	for _, ln := range f.lines {
		b.WriteString(ln.raw)
		b.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".tmp")
	if err != nil {
		return fmt.Errorf("zonefile: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("zonefile: writing %s: %w", f.path, err)
	}
	if err := tmp.Chmod(f.mode); err != nil {
		tmp.Close()
		return fmt.Errorf("zonefile: writing %s: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("zonefile: writing %s: %w", f.path, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("zonefile: replacing %s: %w", f.path, err)
	}
	return nil
}
