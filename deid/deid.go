package deid

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	logger "radpipe.io/logger"
)

const uidExplicitVRLittleEndian = "1.2.840.10008.1.2.1"

// Transfer syntaxes the writer can re-encode. Encapsulated (compressed)
// syntaxes are skipped: transcoding them belongs to the GPU pixel tool.
var writableSyntaxes = map[string]struct{}{
	"1.2.840.10008.1.2":      {}, // implicit VR little endian
	"1.2.840.10008.1.2.1":    {}, // explicit VR little endian
	"1.2.840.10008.1.2.1.99": {}, // deflated explicit VR little endian
	"1.2.840.10008.1.2.2":    {}, // explicit VR big endian
}

// ErrSkipped marks files that are left out of the output set rather than
// failing the run: non-DICOM files, unmapped accessions, unsupported
// transfer syntaxes, missing pixel data.
var ErrSkipped = errors.New("deid: file skipped")

type studyUIDs struct {
	Study  string
	Series string
}

// Processor walks an input tree and writes de-identified copies.
type Processor struct {
	Policy       *Policy
	UIDs         *UIDGenerator
	AccessionMap map[string]string
	InputDir     string
	OutputDir    string

	// consistent UIDs per de-identified accession and per folder name
	accessionUIDs map[string]studyUIDs
	folderUIDs    map[string]string

	Records []Record
}

func NewProcessor(config Config, policy *Policy, accessions map[string]string) *Processor {
	orgRoot := config.OrgRoot
	if len(orgRoot) == 0 {
		orgRoot = "1.3.6.1.4.1.11129.5.1"
	}
	return &Processor{
		Policy:        policy,
		UIDs:          NewUIDGenerator(orgRoot),
		AccessionMap:  accessions,
		InputDir:      config.InputDir,
		OutputDir:     config.OutputBaseDir,
		accessionUIDs: make(map[string]studyUIDs),
		folderUIDs:    make(map[string]string),
	}
}

func stringValue(ds *dicom.Dataset, t tag.Tag) string {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil {
		return ""
	}
	if vals, ok := elem.Value.GetValue().([]string); ok && len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

func setString(ds *dicom.Dataset, t tag.Tag, value string) error {
	newElem, err := dicom.NewElement(t, []string{value})
	if err != nil {
		return err
	}
	for i, elem := range ds.Elements {
		if elem.Tag == t {
			ds.Elements[i] = newElem
			return nil
		}
	}
	ds.Elements = append(ds.Elements, newElem)
	return nil
}

// scrub applies the tag policy to every element. File meta (group 0002) is
// dropped here and rebuilt by the caller. Returns kept and wiped tag names.
func (p *Processor) scrub(ds *dicom.Dataset) (kept, wiped []string) {
	out := ds.Elements[:0]
	for _, elem := range ds.Elements {
		if elem.Tag.Group == 0x0002 {
			continue
		}
		if elem.Tag.Group%2 == 1 {
			// private tag
			wiped = append(wiped, elem.Tag.String())
			continue
		}
		info, err := tag.Find(elem.Tag)
		if err != nil {
			wiped = append(wiped, elem.Tag.String())
			continue
		}
		if p.Policy.Keep(info.Name) {
			kept = append(kept, info.Name)
			out = append(out, elem)
			continue
		}
		if p.Policy.Replace(info.Name) {
			out = append(out, elem)
			continue
		}
		// blank string-valued tags, drop everything else
		if _, ok := elem.Value.GetValue().([]string); ok {
			if blank, berr := dicom.NewElement(elem.Tag, []string{}); berr == nil {
				out = append(out, blank)
				wiped = append(wiped, info.Name)
				continue
			}
		}
		wiped = append(wiped, info.Name)
	}
	ds.Elements = out
	return kept, wiped
}

// outputPath maps the original file location into the de-identified layout:
// the first folder under the input dir becomes the de-identified accession,
// deeper folders get stable UID aliases, and the filename becomes
// <deid_acc>_<sop_uid>.dcm.
func (p *Processor) outputPath(fullPath, deidAcc, sopUID string) (string, error) {
	rel, err := filepath.Rel(p.InputDir, fullPath)
	if err != nil {
		return "", err
	}
	parts := strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/")
	deidParts := []string{deidAcc}
	if len(parts) > 0 && parts[0] != "." {
		for _, part := range parts[1:] {
			alias, ok := p.folderUIDs[part]
			if !ok {
				alias = p.UIDs.Generate()
				p.folderUIDs[part] = alias
			}
			deidParts = append(deidParts, alias)
		}
	}
	deidParts = append(deidParts, deidAcc+"_"+sopUID+".dcm")
	return filepath.Join(append([]string{p.OutputDir}, deidParts...)...), nil
}

// ProcessFile de-identifies one file and records it in the manifest.
func (p *Processor) ProcessFile(fullPath string) (*Record, error) {
	ds, err := dicom.ParseFile(fullPath, nil)
	if err != nil {
		logger.WarningPrintf("skipping non-DICOM file: %s (%v)", fullPath, err)
		return nil, ErrSkipped
	}

	accession := stringValue(&ds, tag.AccessionNumber)
	deidAcc, ok := p.AccessionMap[accession]
	if !ok {
		logger.DebugPrintf("accession %q not in manifest: %s", accession, fullPath)
		return nil, ErrSkipped
	}

	syntax := stringValue(&ds, tag.TransferSyntaxUID)
	if _, ok := writableSyntaxes[syntax]; !ok {
		logger.WarningPrintf("unsupported transfer syntax %q: %s", syntax, fullPath)
		return nil, ErrSkipped
	}
	if _, err := ds.FindElementByTag(tag.PixelData); err != nil {
		logger.WarningPrintf("missing pixel data: %s", fullPath)
		return nil, ErrSkipped
	}

	// Cache consistent UIDs per de-identified accession
	uids, ok := p.accessionUIDs[deidAcc]
	if !ok {
		uids = studyUIDs{Study: p.UIDs.Generate(), Series: p.UIDs.Generate()}
		p.accessionUIDs[deidAcc] = uids
	}
	sopUID := p.UIDs.Generate()

	outPath, err := p.outputPath(fullPath, deidAcc, sopUID)
	if err != nil {
		return nil, err
	}

	sopClass := stringValue(&ds, tag.SOPClassUID)
	burnedIn := stringValue(&ds, tag.BurnedInAnnotation)

	kept, wiped := p.scrub(&ds)
	logger.DebugPrintf("%s kept=%d wiped=%d", fullPath, len(kept), len(wiped))

	// Replace identifying tags
	rewrites := []struct {
		tag   tag.Tag
		value string
	}{
		{tag.AccessionNumber, deidAcc},
		{tag.PatientID, deidAcc},
		{tag.PatientName, deidAcc},
		{tag.StudyID, deidAcc},
		{tag.PatientIdentityRemoved, "YES"},
		{tag.StudyInstanceUID, uids.Study},
		{tag.SeriesInstanceUID, uids.Series},
		{tag.SOPInstanceUID, sopUID},
	}
	for _, rw := range rewrites {
		if err := setString(&ds, rw.tag, rw.value); err != nil {
			return nil, fmt.Errorf("deid: rewrite %s: %w", rw.tag.String(), err)
		}
	}

	// Rebuild file meta as explicit VR little endian
	if len(sopClass) == 0 {
		// secondary capture fallback
		sopClass = "1.2.840.10008.5.1.4.1.1.7"
	}
	meta := []struct {
		tag   tag.Tag
		value string
	}{
		{tag.MediaStorageSOPClassUID, sopClass},
		{tag.MediaStorageSOPInstanceUID, sopUID},
		{tag.TransferSyntaxUID, uidExplicitVRLittleEndian},
		{tag.ImplementationClassUID, p.UIDs.orgRoot},
	}
	for _, m := range meta {
		if err := setString(&ds, m.tag, m.value); err != nil {
			return nil, fmt.Errorf("deid: file meta %s: %w", m.tag.String(), err)
		}
	}
	sort.SliceStable(ds.Elements, func(i, j int) bool {
		return ds.Elements[i].Tag.Compare(ds.Elements[j].Tag) < 0
	})

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return nil, err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return nil, err
	}
	defer out.Close()
	if err := dicom.Write(out, ds, dicom.SkipVRVerification()); err != nil {
		os.Remove(outPath)
		return nil, fmt.Errorf("deid: write %s: %w", outPath, err)
	}

	record := Record{
		OriginalPath:           fullPath,
		DeidPath:               outPath,
		OriginalAccession:      accession,
		DeidAccession:          deidAcc,
		AccessionNumber:        deidAcc,
		PatientID:              deidAcc,
		PatientName:            deidAcc,
		StudyID:                deidAcc,
		StudyUID:               uids.Study,
		SeriesUID:              uids.Series,
		SOPInstanceUID:         sopUID,
		BurnedInAnnotation:     burnedIn,
		PatientIdentityRemoved: "YES",
	}
	p.Records = append(p.Records, record)
	return &record, nil
}

// Run processes the whole input tree. Per-file failures are logged and do
// not stop the walk; the error count is reported to the caller.
func (p *Processor) Run() (processed, skipped, failed int, err error) {
	err = filepath.WalkDir(p.InputDir, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		_, perr := p.ProcessFile(path)
		switch {
		case perr == nil:
			processed++
		case errors.Is(perr, ErrSkipped):
			skipped++
		default:
			failed++
			logger.ErrorPrintf("error processing %s: %v", path, perr)
		}
		return nil
	})
	return processed, skipped, failed, err
}
