// Package deid removes patient-identifying metadata from DICOM files.
// Tags on the keep list pass through untouched, replacement tags are
// rewritten with de-identified values, everything else is blanked or
// deleted. Private tags are always deleted.
package deid

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tag names that survive de-identification (normalized: lowercase, no
// spaces). Acquisition geometry, ultrasound regions, and pixel encoding
// attributes are required downstream and carry no identity.
var keepTags = []string{
	"AcquisitionMatrix", "AngioFlag", "BurnedInAnnotation", "CodeMeaning", "CodeValue",
	"CodingSchemeDesignator", "dBdt", "DeidentificationMethodCodeSequence", "DeviceSerialNumber",
	"EchoNumbers", "EchoTime", "EchoTrainLength", "FlipAngle", "FrameOfReferenceUID",
	"ImageOrientation", "ViewName", "ImageOrientationPatient", "ImageOrientationSlide",
	"ImagePosition", "ImagePositionPatient", "ImageType", "ImagingFrequency",
	"InPlanePhaseEncodingDirection", "InstanceNumber", "InstitutionAddress",
	"InstitutionName", "InversionTime", "Laterality", "LongCodeValue",
	"MagneticFieldStrength", "Manufacturer", "ManufacturerModelName", "Modality",
	"MRAcquisitionType", "NumberOfAverages", "NumberOfPhaseEncodingSteps", "NumberOfSlices",
	"NumberOfTimeSlices", "PatientPosition", "PercentPhaseFieldOfView", "PercentSampling",
	"PerformedProcedureStepDescription", "PixelBandwidth", "PixelSpacing",
	"PositionReferenceIndicator", "ProtocolName", "RepetitionTime", "RequestedProcedureDescription",
	"SAR", "ScanningSequence", "ScanOptions", "SequenceName", "SequenceVariant",
	"SeriesDescription", "SeriesNumber", "SliceLocation", "SliceThickness", "SoftwareVersions",
	"SOPClassUID", "SourceOrientation", "SourcePosition", "SpacingBetweenSlices",
	"StationName", "StudyDescription", "URNCodeValue", "VariableFlipAngleFlag",
	"SpecificCharacterSet", "AnatomicRegion", "Sequence", "BodyPartExamined",
	"ImagerPixelSpacing", "RelativeXRayExposure", "ExposureIndex",
	"TargetExposureIndex", "DeviationIndex", "DetectorType", "DetectorConfiguration",
	"PatientOrientation", "ImageLaterality", "SamplesPerPixel", "PhotometricInterpretation",
	"Rows", "Columns", "BitsAllocated", "BitsStored", "HighBit", "PixelRepresentation",
	"LongitudinalTemporalInformationModified", "PixelIntensityRelationship",
	"PixelIntensityRelationshipSign", "WindowCenter", "WindowWidth",
	"RescaleIntercept", "RescaleSlope", "RescaleType", "WindowCenterWidthExplanation",
	"LossyImageCompression", "AcquisitionContextSequence", "FillerOrderNumberImagingServiceRequest",
	"PresentationLUTShape", "PixelData", "PlanarConfiguration", "PixelAspectRatio",
	"NumberOfFrames", "ReferencedPerformedProcedureStepSequence", "PerformedProtocolCodeSequence",
	"RequestAttributesSequence", "ProcedureCodeSequence", "AnatomicRegionSequence",
	"SequenceOfUltrasoundRegions", "UltrasoundColorDataPresent", "TransducerData",
}

// Tags rewritten with de-identified values rather than wiped.
var replacementTags = []string{
	"AccessionNumber", "PatientID", "PatientName", "StudyID", "PatientIdentityRemoved",
	"StudyInstanceUID", "SeriesInstanceUID", "SOPInstanceUID", "MediaStorageSOPInstanceUID",
}

// NormalizeTag folds a tag name for policy comparison.
func NormalizeTag(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", ""))
}

// Policy is the resolved tag disposition table.
type Policy struct {
	keep    map[string]struct{}
	replace map[string]struct{}
}

func NewPolicy(extraKeep []string) *Policy {
	p := &Policy{
		keep:    make(map[string]struct{}, len(keepTags)+len(extraKeep)),
		replace: make(map[string]struct{}, len(replacementTags)),
	}
	for _, name := range keepTags {
		p.keep[NormalizeTag(name)] = struct{}{}
	}
	for _, name := range extraKeep {
		p.keep[NormalizeTag(name)] = struct{}{}
	}
	for _, name := range replacementTags {
		p.replace[NormalizeTag(name)] = struct{}{}
	}
	return p
}

func (p *Policy) Keep(name string) bool {
	_, ok := p.keep[NormalizeTag(name)]
	return ok
}

func (p *Policy) Replace(name string) bool {
	_, ok := p.replace[NormalizeTag(name)]
	return ok
}

// Config is the de-identification job description loaded from YAML.
type Config struct {
	InputDir          string   `yaml:"input_dir"`
	OutputBaseDir     string   `yaml:"output_base_dir"`
	CsvOutputManifest string   `yaml:"csv_output_manifest"`
	ManifestPath      string   `yaml:"manifest_path"`
	RedactionMode     string   `yaml:"redaction_mode"`
	OrgRoot           string   `yaml:"org_root"`
	ExtraKeepTags     []string `yaml:"extra_keep_tags"`
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("deid: read config: %w", err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("deid: parse config: %w", err)
	}
	if len(config.InputDir) == 0 || len(config.OutputBaseDir) == 0 {
		return Config{}, fmt.Errorf("deid: config needs input_dir and output_base_dir")
	}
	if len(config.ManifestPath) == 0 {
		return Config{}, fmt.Errorf("deid: config needs manifest_path")
	}
	return config, nil
}
