package filetypes

import (
	"strings"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

// ProgTemp describes the instrument configuration encoded in the PROGTEMP
// header card.  The leading digit selects the observing mode and spectrograph
// resolution, the fourth digit the CCD binning.
type ProgTemp struct {
	Code       string
	Mode       string
	Resolution string
	Binning    int
	RedVPH     int
	BlueVPH    int
}

// ObsTemp holds the observing constraints encoded in the five letters of the
// OBSTEMP header card.
type ObsTemp struct {
	Code      string
	MaxSeeing string
	MinTrans  string
	MinElev   string
	MinMoon   string
	MaxSky    string
}

const (
	ModeMOS  = "MOS"
	ModeLIFU = "LIFU"
	ModeMIFU = "mIFU"
)

type instrumentConfig struct {
	mode       string
	resolution string
	redVPH     int
	blueVPH    int
}

// Keyed by the leading PROGTEMP digit.
var instrumentConfigs = map[byte]instrumentConfig{
	'1': {ModeMOS, "low", 1, 1},
	'2': {ModeMOS, "high", 2, 2},
	'3': {ModeMOS, "high", 2, 3},
	'4': {ModeLIFU, "low", 1, 1},
	'5': {ModeLIFU, "high", 2, 2},
	'6': {ModeLIFU, "high", 2, 3},
	'7': {ModeMIFU, "low", 1, 1},
	'8': {ModeMIFU, "high", 2, 2},
	'9': {ModeMIFU, "high", 2, 3},
}

// The same handful of codes repeats across every file of a night.
var progtempCache = cache.New(cache.NoExpiration, 0)

// ParseProgTemp decodes a PROGTEMP code such as "11331.5".  Any suffix after
// a dot is a versioning qualifier and does not affect the configuration.
func ParseProgTemp(code string) (*ProgTemp, error) {
	if cached, ok := progtempCache.Get(code); ok {
		return cached.(*ProgTemp), nil
	}
	digits := strings.SplitN(code, ".", 2)[0]
	if len(digits) < 4 {
		return nil, errors.Errorf("PROGTEMP code %q too short", code)
	}
	config, ok := instrumentConfigs[digits[0]]
	if !ok {
		return nil, errors.Errorf("PROGTEMP code %q has unknown instrument configuration %q", code, digits[0])
	}
	binning := int(digits[3] - '0')
	if binning < 0 || binning > 9 {
		return nil, errors.Errorf("PROGTEMP code %q has invalid binning digit %q", code, digits[3])
	}
	progtemp := &ProgTemp{
		Code:       code,
		Mode:       config.mode,
		Resolution: config.resolution,
		Binning:    binning,
		RedVPH:     config.redVPH,
		BlueVPH:    config.blueVPH,
	}
	progtempCache.SetDefault(code, progtemp)
	return progtemp, nil
}

// VPH returns the grating number for the given camera ("red" or "blue").
func (p *ProgTemp) VPH(camera string) int {
	if strings.EqualFold(camera, "blue") {
		return p.BlueVPH
	}
	return p.RedVPH
}

// ParseObsTemp decodes the five constraint letters of an OBSTEMP code.
func ParseObsTemp(code string) (*ObsTemp, error) {
	if len(code) != 5 {
		return nil, errors.Errorf("OBSTEMP code %q must be 5 letters", code)
	}
	return &ObsTemp{
		Code:      code,
		MaxSeeing: code[0:1],
		MinTrans:  code[1:2],
		MinElev:   code[2:3],
		MinMoon:   code[3:4],
		MaxSky:    code[4:5],
	}, nil
}
