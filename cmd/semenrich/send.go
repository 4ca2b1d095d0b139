package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/c360studio/semenrich/ctrl"
	"github.com/spf13/cobra"
)

func sendCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Publish a control command to every engine instance",
	}

	var target string
	loadModel := &cobra.Command{
		Use:   "load-model",
		Short: "Reload model artifacts (all models, or the one named by --target)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := newLoadModelCommand(target)

			ctx, cancel := context.WithTimeout(contextOrBackground(cmd.Context()), 30*time.Second)
			defer cancel()

			if err := publishCommand(ctx, opts, command); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s %s\n", command.Type, command.ID)
			return nil
		},
	}
	loadModel.Flags().StringVar(&target, "target", "", "Model name to reload (empty reloads all models)")

	cmd.AddCommand(loadModel)
	return cmd
}

func newLoadModelCommand(target string) *ctrl.Command {
	command := ctrl.NewCommand(ctrl.LoadModel, target)
	if host, err := os.Hostname(); err == nil {
		command.IssuedBy = appName + "@" + host
	}
	return command
}

func publishCommand(ctx context.Context, opts *globalOptions, command *ctrl.Command) error {
	logger := newLogger(opts.logLevel)

	cfg, err := loadConfig(opts, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	data, err := ctrl.Encode(command, appName+"-cli")
	if err != nil {
		return err
	}

	natsClient, err := connectToNATS(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	if err := ensureStreams(ctx, cfg, natsClient, logger); err != nil {
		return err
	}

	subject := ctrl.Subject(command.Type)
	if err := natsClient.PublishToStream(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	logger.Info("Control command published",
		"command_id", command.ID,
		"type", command.Type.String(),
		"target", command.Target,
		"subject", subject)
	return nil
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
