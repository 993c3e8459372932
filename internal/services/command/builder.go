// Package command builds sync tool invocations from backup jobs.
package command

import (
	"fmt"
	"sort"

	"github.com/fgeck/bakeup/internal/models"
	"github.com/fgeck/bakeup/internal/services/vars"
)

// DefaultBackend is used when neither the config nor the job names one.
const DefaultBackend = "rsync"

// Profile describes the flag dialect of one sync tool family.
type Profile struct {
	Name          string
	Program       string
	BaseArgs      []string // invariant across jobs
	DryRunFlag    string
	ExcludeFlag   string
	IncludeFlag   string
	FilterFlag    string
	BwLimitFlag   string
	BackupDirArgs []string // emitted before the backup-dir value
	ChecksumFlag  string
}

// Rsync mirrors in archive mode and prints transfer stats.
var Rsync = Profile{
	Name:          "rsync",
	Program:       "rsync",
	BaseArgs:      []string{"-av", "--delete-before", "--force", "--stats"},
	DryRunFlag:    "--dry-run",
	ExcludeFlag:   "--exclude",
	IncludeFlag:   "--include",
	FilterFlag:    "--filter",
	BwLimitFlag:   "--bwlimit",
	BackupDirArgs: []string{"--backup", "--backup-dir"},
	ChecksumFlag:  "--checksum",
}

// Rclone mirrors with metadata and copies symlinks as links.
var Rclone = Profile{
	Name:          "rclone",
	Program:       "rclone",
	BaseArgs:      []string{"sync", "--links", "--metadata", "--track-renames", "--delete-during"},
	DryRunFlag:    "--dry-run",
	ExcludeFlag:   "--exclude",
	IncludeFlag:   "--include",
	FilterFlag:    "--filter",
	BwLimitFlag:   "--bwlimit",
	BackupDirArgs: []string{"--backup-dir"},
	ChecksumFlag:  "--checksum",
}

var profiles = map[string]Profile{
	Rsync.Name:  Rsync,
	Rclone.Name: Rclone,
}

// ProfileFor returns the profile registered under name.
// An empty name selects DefaultBackend.
func ProfileFor(name string) (Profile, error) {
	if name == "" {
		name = DefaultBackend
	}
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown backend %q, must be one of: %v", name, ProfileNames())
	}
	return p, nil
}

// ProfileNames returns the registered backend names in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builder turns jobs into argument vectors.
type Builder struct {
	profile Profile
	vars    vars.Service
}

// NewBuilder creates a builder for profile. Destinations and backup
// directories are passed through v.
func NewBuilder(profile Profile, v vars.Service) *Builder {
	return &Builder{
		profile: profile,
		vars:    v,
	}
}

// Profile returns the builder's backend profile.
func (b *Builder) Profile() Profile {
	return b.profile
}

// Build returns the full argument vector for job, program name first.
// All flags precede the two positional arguments, source and destination.
// Date tokens in the backup directory and the destination resolve to the
// same instant.
func (b *Builder) Build(job models.Job) []string {
	p := b.profile
	now := b.vars.Now()

	args := make([]string, 0, 16)
	args = append(args, p.Program)
	args = append(args, p.BaseArgs...)

	if job.DryRun {
		args = append(args, p.DryRunFlag)
	}
	for _, exclude := range job.Excludes {
		args = append(args, p.ExcludeFlag, exclude)
	}
	for _, include := range job.Includes {
		args = append(args, p.IncludeFlag, include)
	}
	for _, filter := range job.Filters {
		args = append(args, p.FilterFlag, filter)
	}
	args = append(args, job.AdditionalArguments...)

	if job.BwLimit != "" {
		args = append(args, p.BwLimitFlag, job.BwLimit)
	}
	if job.BackupDir != "" {
		args = append(args, p.BackupDirArgs...)
		args = append(args, b.vars.SubstituteAt(job.BackupDir, now))
	}
	if job.Checksum {
		args = append(args, p.ChecksumFlag)
	}

	return append(args, job.Source, b.vars.SubstituteAt(job.Dest, now))
}
