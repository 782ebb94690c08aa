package main

import (
	"archive/zip"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shiftsuite/shiftboard/pkg/archive"
)

func checkCmd() *cobra.Command {
	var (
		maxMembers int
		maxTotalMB int64
	)

	cmd := &cobra.Command{
		Use:   "check <archive.zip>",
		Short: "Validate an analysis archive offline",
		Long: `Validate a ZIP of analysis artifacts without starting a server or
creating a session.

The archive is checked against the same defenses the upload endpoint
applies: member count, per-member and total uncompressed size,
compression ratio, and path traversal. Scenario directories are listed
on success.

Examples:
  shiftboard check analysis.zip
  shiftboard check --max-members=500 analysis.zip`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(args[0], maxMembers, maxTotalMB)
		},
	}

	cmd.Flags().IntVar(&maxMembers, "max-members", 0, "Override the member count limit")
	cmd.Flags().Int64Var(&maxTotalMB, "max-total-mb", 0, "Override the total uncompressed size limit (MB)")

	return cmd
}

func runCheck(path string, maxMembers int, maxTotalMB int64) error {
	limits := archive.DefaultLimits()
	if maxMembers > 0 {
		limits.MaxMembers = maxMembers
	}
	if maxTotalMB > 0 {
		limits.MaxTotalBytes = maxTotalMB << 20
	}

	if err := archive.Validate(path, limits); err != nil {
		errorMsg("%s failed validation", path)
		return err
	}
	success("%s passes extraction limits", path)

	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	scenarios := archive.ScenarioNames(names)

	fmt.Println()
	info("members:   %d", len(zr.File))
	info("scenarios: %d", len(scenarios))
	for _, sc := range scenarios {
		info("  %s (%s)", sc, archive.DisplayName(sc))
	}
	return nil
}
