package instructions

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/weaveproject/weaveio/internal/ingester/filetypes"
	"github.com/weaveproject/weaveio/internal/ingester/fits"
	"github.com/weaveproject/weaveio/internal/ingester/model"
)

// Convert derives the archive rows for one file from its primary header.
// The hierarchy is run -> exposure -> OB -> OB spec, with the instrument
// configuration hanging off the PROGTEMP code.
func Convert(fileType filetypes.FileType, filename string, night string, header *fits.Header) (*model.InstructionSet, error) {
	runId, err := header.Int("RUN")
	if err != nil {
		return nil, err
	}
	camera, err := cameraName(header)
	if err != nil {
		return nil, err
	}
	expMjd, err := header.Float("MJD-OBS")
	if err != nil {
		return nil, err
	}
	obStartMjd, err := header.Float("OBSTART")
	if err != nil {
		return nil, err
	}
	obTitle, err := header.String("OBTITLE")
	if err != nil {
		return nil, err
	}
	xml, err := header.String("CAT-NAME")
	if err != nil {
		return nil, err
	}
	obId, err := header.Int("OBID")
	if err != nil {
		return nil, err
	}
	progtempCode, err := header.String("PROGTEMP")
	if err != nil {
		return nil, err
	}
	obstempCode, err := header.String("OBSTEMP")
	if err != nil {
		return nil, err
	}

	progtemp, err := filetypes.ParseProgTemp(progtempCode)
	if err != nil {
		return nil, err
	}
	obstemp, err := filetypes.ParseObsTemp(obstempCode)
	if err != nil {
		return nil, err
	}

	set := &model.InstructionSet{
		// both arms are configured together, record them together
		ArmConfigs: []model.ArmConfigRow{
			{Camera: "red", VPH: progtemp.RedVPH, Resolution: progtemp.Resolution},
			{Camera: "blue", VPH: progtemp.BlueVPH, Resolution: progtemp.Resolution},
		},
		OBSpecs: []model.OBSpecRow{{
			XML:        xml,
			OBTitle:    obTitle,
			ObsTemp:    obstemp.Code,
			MaxSeeing:  obstemp.MaxSeeing,
			MinTrans:   obstemp.MinTrans,
			MinElev:    obstemp.MinElev,
			MinMoon:    obstemp.MinMoon,
			MaxSky:     obstemp.MaxSky,
			ProgTemp:   progtemp.Code,
			Mode:       progtemp.Mode,
			Resolution: progtemp.Resolution,
			Binning:    progtemp.Binning,
		}},
		OBs:       []model.OBRow{{OBID: obId, OBStartMJD: obStartMjd, OBSpecXML: xml}},
		Exposures: []model.ExposureRow{{ExpMJD: expMjd, OBID: obId}},
		Runs: []model.RunRow{{
			RunID:  runId,
			ExpMJD: expMjd,
			Camera: camera,
			VPH:    progtemp.VPH(camera),
		}},
		Files: []model.FileRow{{
			FName:    filename,
			FileType: string(fileType),
			Night:    night,
		}},
	}

	if fileType.HasRunList() {
		runIds, err := runList(header)
		if err != nil {
			return nil, err
		}
		for _, id := range runIds {
			set.FileRuns = append(set.FileRuns, model.FileRunRow{FName: filename, RunID: id})
		}
	} else {
		set.FileRuns = []model.FileRunRow{{FName: filename, RunID: runId}}
	}
	return set, nil
}

// cameraName strips the instrument prefix from the CAMERA card, so that
// "WEAVERED" becomes "red".
func cameraName(header *fits.Header) (string, error) {
	camera, err := header.String("CAMERA")
	if err != nil {
		return "", err
	}
	camera = strings.ToLower(strings.TrimSpace(camera))
	camera = strings.TrimPrefix(camera, "weave")
	if camera != "red" && camera != "blue" {
		return "", errors.Errorf("unrecognized CAMERA value %q", camera)
	}
	return camera, nil
}

// runList collects the RUNS<i> card family, ordered by index.
func runList(header *fits.Header) ([]int64, error) {
	values := header.ValuesWithPrefix("RUNS")
	indexes := make([]int, 0, len(values))
	byIndex := map[int]int64{}
	for suffix, value := range values {
		index, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		runId, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, errors.Errorf("RUNS%d card is not a run id: %q", index, value)
		}
		indexes = append(indexes, index)
		byIndex[index] = runId
	}
	if len(indexes) == 0 {
		return nil, errors.New("no RUNS cards found")
	}
	sort.Ints(indexes)
	runIds := make([]int64, 0, len(indexes))
	for _, index := range indexes {
		runIds = append(runIds, byIndex[index])
	}
	return runIds, nil
}
