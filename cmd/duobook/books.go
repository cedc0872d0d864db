package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/duobook/duobook-go/internal/library"
)

var booksCmd = &cobra.Command{
	Use:     "books",
	GroupID: "library",
	Short:   "List books on this device",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		books, err := ap.library.ListBooks(cmd.Context())
		if err != nil {
			return err
		}
		if len(books) == 0 {
			fmt.Fprintln(ap.out, renderMuted("No books yet. Create one with 'duobook new'."))
			return nil
		}

		tw := tabwriter.NewWriter(ap.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tLANGUAGES\tCHAPTERS\tMODIFIED")
		for _, b := range books {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s→%s\t%d\t%s\n",
				b.ID, b.Title, b.Author, b.SourceLanguage, b.TargetLanguage, len(b.Chapters),
				time.UnixMilli(b.LastModified).Format(time.DateTime))
		}
		return tw.Flush()
	},
}

var newCmd = &cobra.Command{
	Use:     "new",
	GroupID: "library",
	Short:   "Create an empty book",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		title, _ := f.GetString("title")
		author, _ := f.GetString("author")
		source, _ := f.GetString("source")
		target, _ := f.GetString("target")

		b, err := ap.library.CreateBook(cmd.Context(), library.NewBook{
			Title:          title,
			Author:         author,
			SourceLanguage: source,
			TargetLanguage: target,
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(ap.out, renderPass("Created "+b.Title))
		fmt.Fprintf(ap.out, "   ID: %s\n", b.ID)
		ap.autoSync(cmd.Context())
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <book-id>",
	GroupID: "library",
	Short:   "Delete a book on every device",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ap.library.DeleteBook(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(ap.out, renderPass("Deleted "+args[0]))
		ap.autoSync(cmd.Context())
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:     "read <book-id> <chapter> <sentence>",
	GroupID: "library",
	Short:   "Record your reading position",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		chapter, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("chapter must be a number: %w", err)
		}
		sentence, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("sentence must be a number: %w", err)
		}

		loc, err := ap.library.SetReadingLocation(cmd.Context(), args[0], chapter, sentence)
		if errors.Is(err, library.ErrBookNotFound) {
			return fmt.Errorf("no book %q on this device", args[0])
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(ap.out, "%s chapter %d, sentence %d\n", renderPass("Position saved:"), loc.ChapterID, loc.SentenceID)
		ap.autoSync(cmd.Context())
		return nil
	},
}

func init() {
	f := newCmd.Flags()
	f.String("title", "", "book title")
	f.String("author", "", "book author")
	f.String("source", "", "source language code")
	f.String("target", "", "target language code")
	_ = newCmd.MarkFlagRequired("title")

	rootCmd.AddCommand(booksCmd, newCmd, deleteCmd, readCmd)
}
