package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func publishCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "publish <channel> <name> <data>",
		Short: "Publish one message",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			options, err := buildOptions(cmd, flags)
			if err != nil {
				return err
			}
			data, err := parseData(args[2], asJSON)
			if err != nil {
				return err
			}

			client, err := connect(options, flags.timeout)
			if err != nil {
				return err
			}
			defer closeClient(client)

			channel, err := client.Channel(args[0])
			if err != nil {
				return err
			}
			if err := channel.Publish(args[1], data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s/%s\n", args[0], args[1])
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "decode <data> as JSON before publishing")
	return cmd
}
