package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/eringen/insights"
)

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Inspect posts from the terminal",
}

var (
	listDrafts     bool
	listCategories []string
	showWidth      int
)

var postsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List posts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		posts, err := store.ListPosts(cmd.Context(), insights.PostFilter{PublishedOnly: !listDrafts})
		if err != nil {
			return err
		}
		posts = filterByCategories(posts, insights.FilterEmpty(listCategories))

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SLUG\tTITLE\tSTATUS\tPUBLISHED\tCATEGORIES")
		for _, p := range posts {
			status, date := "draft", "-"
			if p.Published {
				status = "published"
				date = p.PublishedAt.Format("2006-01-02")
			}
			slugs := make([]string, len(p.Categories))
			for i, c := range p.Categories {
				slugs[i] = c.Slug
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Slug, p.Title, status, date, strings.Join(slugs, ","))
		}
		return w.Flush()
	},
}

// filterByCategories keeps posts linked to any of slugs. An empty list
// keeps everything.
func filterByCategories(posts []insights.Post, slugs []string) []insights.Post {
	if len(slugs) == 0 {
		return posts
	}
	var out []insights.Post
	for _, p := range posts {
		for _, s := range slugs {
			if p.HasCategory(strings.ToLower(s)) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

var postsShowCmd = &cobra.Command{
	Use:   "show <slug>",
	Short: "Render a post's markdown in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		p, err := store.GetPost(cmd.Context(), args[0], false)
		if err != nil {
			return fmt.Errorf("post %q: %w", args[0], err)
		}

		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(showWidth),
		)
		if err != nil {
			return err
		}
		header := fmt.Sprintf("# %s\n\n_%s · %s_\n\n> %s\n\n", p.Title, p.Author.Name, p.ReadTime, p.Excerpt)
		out, err := r.Render(header + p.Content)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	},
}

func init() {
	postsListCmd.Flags().BoolVar(&listDrafts, "drafts", false, "include unpublished posts")
	postsListCmd.Flags().StringSliceVar(&listCategories, "category", nil, "only posts in these category slugs (comma separated)")
	postsShowCmd.Flags().IntVar(&showWidth, "width", 80, "word wrap width")
	postsCmd.AddCommand(postsListCmd, postsShowCmd)
}
