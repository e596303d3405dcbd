package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rtctl/internal/metafile"
)

// NewMetaCommand returns the "meta" command tree for .torrent files.
func NewMetaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meta",
		Short: "Inspect and edit .torrent files",
	}
	cmd.AddCommand(newMetaShowCmd(), newMetaEditCmd())
	return cmd
}

func newMetaShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <file.torrent>",
		Short: "Print the decoded metafile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := metafile.Load(args[0])
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			return printMetafile(m, asJSON)
		},
	}
	cmd.Flags().Bool("json", false, "JSON output")
	return cmd
}

func printMetafile(m *metafile.Metafile, asJSON bool) error {
	p := newPrinter()

	if asJSON {
		type jsonFile struct {
			Path   string `json:"path"`
			Length int64  `json:"length"`
		}
		out := struct {
			Name         string     `json:"name"`
			InfoHash     string     `json:"info_hash"`
			Size         int64      `json:"size"`
			PieceLength  int64      `json:"piece_length"`
			PieceCount   int        `json:"piece_count"`
			Private      bool       `json:"private"`
			Announce     string     `json:"announce,omitempty"`
			AnnounceList [][]string `json:"announce_list,omitempty"`
			Comment      string     `json:"comment,omitempty"`
			CreatedBy    string     `json:"created_by,omitempty"`
			CreationDate string     `json:"creation_date,omitempty"`
			Files        []jsonFile `json:"files"`
		}{
			Name:         m.Name,
			InfoHash:     m.InfoHashString(),
			Size:         m.TotalSize,
			PieceLength:  m.PieceLength,
			PieceCount:   m.PieceCount,
			Private:      m.Private,
			Announce:     m.Announce,
			AnnounceList: m.AnnounceList,
			Comment:      m.Comment,
			CreatedBy:    m.CreatedBy,
		}
		if !m.CreationDate.IsZero() {
			out.CreationDate = m.CreationDate.UTC().Format(time.RFC3339)
		}
		for _, f := range m.Files {
			out.Files = append(out.Files, jsonFile{Path: f.Path, Length: f.Length})
		}
		return p.json(out)
	}

	pairs := [][2]string{
		{"name", m.Name},
		{"info hash", m.InfoHashString()},
		{"size", formatBytes(m.TotalSize)},
		{"pieces", fmt.Sprintf("%d x %s", m.PieceCount, formatBytes(m.PieceLength))},
		{"private", boolWord(m.Private)},
	}
	if m.Announce != "" {
		pairs = append(pairs, [2]string{"announce", m.Announce})
	}
	for _, tier := range m.AnnounceList {
		pairs = append(pairs, [2]string{"announce-list", strings.Join(tier, " ")})
	}
	if m.Comment != "" {
		pairs = append(pairs, [2]string{"comment", m.Comment})
	}
	if m.CreatedBy != "" {
		pairs = append(pairs, [2]string{"created by", m.CreatedBy})
	}
	if !m.CreationDate.IsZero() {
		pairs = append(pairs, [2]string{"created", m.CreationDate.UTC().Format(time.RFC3339)})
	}
	pairs = append(pairs, [2]string{"files", strconv.Itoa(len(m.Files))})
	p.kv(pairs)

	rows := make([][]string, 0, len(m.Files))
	for _, f := range m.Files {
		rows = append(rows, []string{formatBytes(f.Length), f.Path})
	}
	fmt.Fprintln(p.w)
	p.table([]string{"SIZE", "PATH"}, rows)
	return nil
}

func boolWord(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func newMetaEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <file.torrent>",
		Short: "Edit a metafile, preserving the info hash",
		Long: `Rewrite announce URL or comment, or strip non-standard keys
(resume data, session state). The info dictionary is never touched, so
the info hash stays stable. Without --output the file is replaced
in-place (atomically).`,
		Args: cobra.ExactArgs(1),
		RunE: runMetaEdit,
	}
	cmd.Flags().String("announce", "", "replace the announce URL (drops announce-list)")
	cmd.Flags().String("comment", "", "replace the comment (empty string removes it)")
	cmd.Flags().Bool("strip", false, "remove non-standard top-level keys")
	cmd.Flags().StringP("output", "o", "", "write the result here instead of in-place")
	return cmd
}

func runMetaEdit(cmd *cobra.Command, args []string) error {
	announce, _ := cmd.Flags().GetString("announce")
	comment, _ := cmd.Flags().GetString("comment")
	strip, _ := cmd.Flags().GetBool("strip")
	output, _ := cmd.Flags().GetString("output")

	editAnnounce := cmd.Flags().Changed("announce")
	editComment := cmd.Flags().Changed("comment")
	if !editAnnounce && !editComment && !strip {
		return fmt.Errorf("nothing to do: pass --announce, --comment or --strip")
	}

	m, err := metafile.Load(args[0])
	if err != nil {
		return err
	}

	if editAnnounce {
		if err := m.SetAnnounce(announce); err != nil {
			return err
		}
		fmt.Printf("announce set to %s\n", announce)
	}
	if editComment {
		if err := m.SetComment(comment); err != nil {
			return err
		}
		if comment == "" {
			fmt.Println("comment removed")
		} else {
			fmt.Println("comment set")
		}
	}
	if strip {
		removed := m.Strip()
		sort.Strings(removed)
		if len(removed) == 0 {
			fmt.Println("nothing to strip")
		} else {
			fmt.Printf("stripped %s\n", strings.Join(removed, ", "))
		}
	}

	if output == "" {
		output = args[0]
	}
	if err := m.Write(output); err != nil {
		return err
	}
	fmt.Printf("wrote %s (info hash %s)\n", output, m.InfoHashString())
	return nil
}
