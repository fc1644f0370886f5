package review

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/chenzhangda16/grantguard/internal/guard/addr"
	"github.com/chenzhangda16/grantguard/internal/guard/classify"
	"github.com/chenzhangda16/grantguard/internal/guard/model"
	"github.com/chenzhangda16/grantguard/internal/guard/registry"
)

var (
	addressHeaders = []string{"address", "voter", "threats"}
	threatHeaders  = []string{"threat_type", "threat type", "threattype"}
)

// ParseReviewed reads a reviewer's CSV: an address column (address, voter or
// threats) and an optional threat type column. Blank rows and rows the
// reviewer marked Normal are skipped; a row with an unknown threat type fails
// the whole file.
func ParseReviewed(r io.Reader) ([]registry.Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("reviewed file is empty")
	}
	if err != nil {
		return nil, err
	}
	addrCol, typeCol := -1, -1
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		switch {
		case slices.Contains(addressHeaders, h) && addrCol < 0:
			addrCol = i
		case slices.Contains(threatHeaders, h):
			typeCol = i
		}
	}
	if addrCol < 0 {
		return nil, fmt.Errorf("reviewed file: no address column in header %v", header)
	}

	var out []registry.Entry
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reviewed file line %d: %w", line, err)
		}
		if addrCol >= len(rec) || strings.TrimSpace(rec[addrCol]) == "" {
			continue
		}
		e := registry.Entry{Address: addr.Canonical(rec[addrCol])}
		if typeCol >= 0 && typeCol < len(rec) && strings.TrimSpace(rec[typeCol]) != "" {
			tt, err := model.ParseThreatType(rec[typeCol])
			if err != nil {
				return nil, fmt.Errorf("reviewed file line %d: %w", line, err)
			}
			if tt == model.Normal {
				continue
			}
			e.Threat = tt
		}
		out = append(out, e)
	}
	return out, nil
}

// WriteReport renders flagged voters as "voter,Threat Type".
func WriteReport(w io.Writer, flags []classify.Flag) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"voter", "Threat Type"}); err != nil {
		return err
	}
	for _, f := range flags {
		if err := cw.Write([]string{f.Address, string(f.Threat)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
