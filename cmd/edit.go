package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"recscribe/internal/client"
)

const editHelp = `commands:
  p <n>         play snippet n
  e <n> <text>  replace the text of snippet n
  l             list snippets
  s             submit edits
  q             quit`

func newEditCmd() *cobra.Command {
	opts := &clientOptions{}
	var prefix, recording, ffplay string

	cmd := &cobra.Command{
		Use:     "edit",
		Short:   "Review and correct a transcript interactively",
		Example: `  recscribe edit --prefix 20240305 --recording interview.wav -u editor`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.login(cmd.Context())
			if err != nil {
				return err
			}
			editor, err := c.Editor(cmd.Context(), prefix, recording)
			if err != nil {
				return err
			}
			audio := client.NewFFPlay(ffplay, editor.AudioURL)
			player := client.NewPlayer(audio, editor.Snippets, nil)
			defer player.Stop()

			texts := make([]string, len(editor.Snippets))
			for i, sn := range editor.Snippets {
				texts[i] = sn.Transcript
			}
			out := cmd.OutOrStdout()
			session := &editSession{out: out, player: player, texts: texts}
			session.list()
			fmt.Fprintln(out, editHelp)

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for fmt.Fprint(out, "> "); scanner.Scan(); fmt.Fprint(out, "> ") {
				verb, rest, _ := strings.Cut(strings.TrimSpace(scanner.Text()), " ")
				switch verb {
				case "":
				case "q":
					return nil
				case "l":
					session.list()
				case "p":
					if err := session.play(rest); err != nil {
						fmt.Fprintln(out, err)
					}
				case "e":
					if err := session.edit(rest); err != nil {
						fmt.Fprintln(out, err)
					}
				case "s":
					panels := client.NewPanels(out)
					if err := c.SubmitTranscript(cmd.Context(), editor.TranscriptKey, session.texts, panels); err != nil {
						fmt.Fprintln(out, err)
					}
				default:
					fmt.Fprintln(out, editHelp)
				}
			}
			return scanner.Err()
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&prefix, "prefix", "", "Date prefix, like 20240305")
	cmd.Flags().StringVar(&recording, "recording", "", "Recording file name")
	cmd.Flags().StringVar(&ffplay, "ffplay", "ffplay", "ffplay binary used for playback")
	_ = cmd.MarkFlagRequired("prefix")
	_ = cmd.MarkFlagRequired("recording")

	return cmd
}

type editSession struct {
	out    io.Writer
	player *client.Player
	texts  []string
}

func (s *editSession) list() {
	rows := s.player.Rows()
	for i, row := range rows {
		marker := " "
		if row.Active {
			marker = "*"
		}
		fmt.Fprintf(s.out, "%s%3d [%7.2f-%7.2f] %s\n", marker, i, row.Start, row.End, s.texts[i])
	}
}

func (s *editSession) index(arg string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 0 || n >= len(s.texts) {
		return 0, fmt.Errorf("snippet must be between 0 and %d", len(s.texts)-1)
	}
	return n, nil
}

func (s *editSession) play(arg string) error {
	n, err := s.index(arg)
	if err != nil {
		return err
	}
	return s.player.Activate(n)
}

func (s *editSession) edit(arg string) error {
	num, text, ok := strings.Cut(strings.TrimSpace(arg), " ")
	if !ok {
		return errors.New("usage: e <n> <text>")
	}
	n, err := s.index(num)
	if err != nil {
		return err
	}
	s.texts[n] = text
	return nil
}
