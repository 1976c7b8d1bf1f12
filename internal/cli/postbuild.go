package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rescale/fwrelease/internal/envview"
	"github.com/rescale/fwrelease/internal/hooks"
)

// newPostBuildCmd creates the 'post-build' command.
func newPostBuildCmd() *cobra.Command {
	var (
		envFile        string
		projectEnvFile string
		opts           hooks.PostBuildOptions
	)

	cmd := &cobra.Command{
		Use:   "post-build",
		Short: "Package the built firmware into a release archive",
		Long: `Run after the firmware image has been linked.

Records the ELF digest in the ledger, stages the firmware image and the
upload tools, writes fmw_upload.bat / fmw_upload.sh launchers and zips
everything into <release dir>/<env>/<project>_v<tag>.zip.

The archive path is printed on stdout.

Examples:
  fwrelease post-build --env env.json

  # Fall back to the project environment for keys the build env lacks
  fwrelease post-build --env env.json --project-env project.json

  # Upload the archive using [publish] in fwrelease.ini
  fwrelease post-build --env env.json --publish`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadView(envFile)
			if err != nil {
				return err
			}
			var view envview.View = env
			if projectEnvFile != "" {
				projectEnv, err := envview.Load(projectEnvFile)
				if err != nil {
					return err
				}
				view = envview.Layered{env, projectEnv}
			}

			s, err := newSession(cmd, view)
			if err != nil {
				return err
			}
			client, err := s.httpClient()
			if err != nil {
				return err
			}
			if opts.Publish {
				if _, err := s.publisher(client); err != nil {
					return err
				}
			}

			res, err := hooks.PostBuild(GetContext(), s.deps, view, opts)
			if res != nil && res.Release != nil {
				fmt.Fprintln(cmd.OutOrStdout(), res.Release.ArchivePath)
			}
			if err != nil {
				return fmt.Errorf("post-build failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&envFile, "env", "e", "", "Construction environment dump (JSON or YAML)")
	cmd.Flags().StringVar(&projectEnvFile, "project-env", "", "Project environment dump consulted after --env")
	cmd.Flags().BoolVar(&opts.Publish, "publish", false, "Publish the archive to the [publish] target")
	cmd.MarkFlagRequired("env")

	return cmd
}
