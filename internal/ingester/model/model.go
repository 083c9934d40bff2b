package model

// Rows destined for the archive database.  One InstructionSet is derived per
// ingested file and batched before writing.

type ArmConfigRow struct {
	Camera     string
	VPH        int
	Resolution string
}

type OBSpecRow struct {
	// Name of the catalogue XML that configured the observation, the natural
	// key of an OB specification
	XML     string
	OBTitle string
	ObsTemp string
	// Constraint letters decoded from ObsTemp
	MaxSeeing string
	MinTrans  string
	MinElev   string
	MinMoon   string
	MaxSky    string

	ProgTemp   string
	Mode       string
	Resolution string
	Binning    int
}

type OBRow struct {
	OBID       int64
	OBStartMJD float64
	OBSpecXML  string
}

type ExposureRow struct {
	ExpMJD float64
	OBID   int64
}

type RunRow struct {
	RunID  int64
	ExpMJD float64
	Camera string
	VPH    int
}

type FileRow struct {
	FName    string
	FileType string
	Night    string
}

// FileRunRow links a file to a run it was built from.  Stack and L2 products
// reference several runs.
type FileRunRow struct {
	FName string
	RunID int64
}

// InstructionSet holds everything a single file contributes to the archive.
type InstructionSet struct {
	ArmConfigs []ArmConfigRow
	OBSpecs    []OBSpecRow
	OBs        []OBRow
	Exposures  []ExposureRow
	Runs       []RunRow
	Files      []FileRow
	FileRuns   []FileRunRow
}

// Merge appends the rows of other.
func (s *InstructionSet) Merge(other *InstructionSet) {
	s.ArmConfigs = append(s.ArmConfigs, other.ArmConfigs...)
	s.OBSpecs = append(s.OBSpecs, other.OBSpecs...)
	s.OBs = append(s.OBs, other.OBs...)
	s.Exposures = append(s.Exposures, other.Exposures...)
	s.Runs = append(s.Runs, other.Runs...)
	s.Files = append(s.Files, other.Files...)
	s.FileRuns = append(s.FileRuns, other.FileRuns...)
}

// Size is the total number of rows.
func (s *InstructionSet) Size() int {
	return len(s.ArmConfigs) + len(s.OBSpecs) + len(s.OBs) + len(s.Exposures) +
		len(s.Runs) + len(s.Files) + len(s.FileRuns)
}
