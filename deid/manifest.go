package deid

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// LoadAccessionMap reads the study manifest CSV and maps accession_num to
// subject_id. Site manifests are frequently exported as ISO-8859-1, so the
// reader decodes from Latin-1; plain ASCII passes through unchanged.
func LoadAccessionMap(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("deid: open manifest: %w", err)
	}
	defer f.Close()
	return readAccessionMap(charmap.ISO8859_1.NewDecoder().Reader(f))
}

func readAccessionMap(r io.Reader) (map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("deid: parse manifest: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("deid: manifest is empty")
	}
	accCol, subjCol := -1, -1
	for i, name := range rows[0] {
		switch strings.TrimSpace(name) {
		case "accession_num":
			accCol = i
		case "subject_id":
			subjCol = i
		}
	}
	if accCol < 0 || subjCol < 0 {
		return nil, fmt.Errorf("deid: manifest needs accession_num and subject_id columns")
	}
	m := make(map[string]string, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) <= accCol || len(row) <= subjCol {
			continue
		}
		acc := strings.TrimSpace(row[accCol])
		if len(acc) > 0 {
			m[acc] = strings.TrimSpace(row[subjCol])
		}
	}
	return m, nil
}

// Record is one output manifest row, written per de-identified file. The
// patient fields carry the rewritten values, not the originals.
type Record struct {
	OriginalPath           string
	DeidPath               string
	OriginalAccession      string
	DeidAccession          string
	AccessionNumber        string
	PatientID              string
	PatientName            string
	StudyID                string
	StudyUID               string
	SeriesUID              string
	SOPInstanceUID         string
	BurnedInAnnotation     string
	PatientIdentityRemoved string
}

var manifestHeader = []string{
	"original_path", "deid_path", "original_accession", "deid_accession",
	"accession_number", "patient_id", "patient_name", "study_id",
	"study_uid", "series_uid", "sop_instance_uid",
	"burned_in_annotation", "patient_identity_removed",
}

// WriteManifest saves the output manifest CSV.
func WriteManifest(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("deid: create manifest: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(manifestHeader); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.OriginalPath, rec.DeidPath, rec.OriginalAccession, rec.DeidAccession,
			rec.AccessionNumber, rec.PatientID, rec.PatientName, rec.StudyID,
			rec.StudyUID, rec.SeriesUID, rec.SOPInstanceUID,
			rec.BurnedInAnnotation, rec.PatientIdentityRemoved,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
