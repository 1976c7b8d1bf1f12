package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// newPublishCmd creates the 'publish' command.
func newPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <archive.zip>",
		Short: "Upload an existing release archive",
		Long: `Upload a release archive to the target configured in [publish].

Targets:
  s3     s3_bucket, s3_prefix, s3_region, s3_endpoint
  azure  azure_sas_url (or FWRELEASE_AZURE_SAS_URL)
  http   http_url, token from the variable named by http_token_env

Examples:
  fwrelease publish .pio/release/esp32/sensor-node_v1.2.9-esp32-abc1234.zip`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, nil)
			if err != nil {
				return err
			}
			client, err := s.httpClient()
			if err != nil {
				return err
			}
			p, err := s.publisher(client)
			if err != nil {
				return err
			}

			location, err := p.Publish(GetContext(), args[0])
			if err != nil {
				return fmt.Errorf("failed to publish %s: %w", args[0], err)
			}
			s.deps.Notifier.Published(tagFromArchive(args[0]), location)
			fmt.Fprintln(cmd.OutOrStdout(), location)
			return nil
		},
	}
}

// tagFromArchive recovers the tag from a <project>_v<tag>.zip name.
func tagFromArchive(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.LastIndex(name, "_v"); i >= 0 {
		return name[i+2:]
	}
	return name
}
