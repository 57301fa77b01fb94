package isotp

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"

	can "github.com/vehiclecomms/isotp/pkg/can"
)

// Profile is the subset of Config that can be described in an INI
// file: everything except the Transport, Clock and Metrics, which are
// wired up by the caller after loading.
type Profile struct {
	Format  can.Format
	Mode    Mode
	MaxWait uint8
	NAs     time.Duration
	NAr     time.Duration
	NBs     time.Duration
	NCr     time.Duration
}

var formatNames = map[string]can.Format{
	"classic": can.Classic,
	"fd":      can.FD,
}

var modeNames = map[string]Mode{
	"normal":       Normal,
	"normal-fixed": NormalFixed,
	"extended":     Extended,
	"mixed":        Mixed,
}

// LoadProfile reads a conversation profile from an INI file under the
// [isotp] section:
//
//	[isotp]
//	format = classic   ; or fd
//	mode = normal      ; normal, normal-fixed, extended, mixed
//	max_wait = 16
//	n_as_us = 1000000
//	n_ar_us = 1000000
//	n_bs_us = 1000000
//	n_cr_us = 1000000
//
// Unset timer keys load as zero, which NewContext replaces with its
// one-second default.
func LoadProfile(path string) (Profile, error) {
	var profile Profile
	cfg, err := ini.Load(path)
	if err != nil {
		return profile, fmt.Errorf("isotp: load profile: %w", err)
	}
	section := cfg.Section("isotp")

	formatStr := section.Key("format").MustString("classic")
	format, ok := formatNames[formatStr]
	if !ok {
		return profile, fmt.Errorf("isotp: unknown format %q", formatStr)
	}

	modeStr := section.Key("mode").MustString("normal")
	mode, ok := modeNames[modeStr]
	if !ok {
		return profile, fmt.Errorf("isotp: unknown addressing mode %q", modeStr)
	}

	profile.Format = format
	profile.Mode = mode
	profile.MaxWait = uint8(section.Key("max_wait").MustUint(0))
	profile.NAs = time.Duration(section.Key("n_as_us").MustInt64(0)) * time.Microsecond
	profile.NAr = time.Duration(section.Key("n_ar_us").MustInt64(0)) * time.Microsecond
	profile.NBs = time.Duration(section.Key("n_bs_us").MustInt64(0)) * time.Microsecond
	profile.NCr = time.Duration(section.Key("n_cr_us").MustInt64(0)) * time.Microsecond
	return profile, nil
}

// Config builds a full Config from the profile, attaching the given
// transport and optional metrics recorder.
func (p Profile) Config(transport Transport, metrics *Recorder) Config {
	return Config{
		Format:    p.Format,
		Mode:      p.Mode,
		MaxWait:   p.MaxWait,
		NAs:       p.NAs,
		NAr:       p.NAr,
		NBs:       p.NBs,
		NCr:       p.NCr,
		Transport: transport,
		Metrics:   metrics,
	}
}
