package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"dorogallery/internal/bot"
	"dorogallery/internal/domain"
)

var errUsage = errors.New("invalid arguments")

func (a *app) dispatch(ctx context.Context, name string, args []string) error {
	commands := map[string]func(context.Context, []string) error{
		"list":     a.cmdList,
		"get":      a.cmdGet,
		"like":     a.cmdLike,
		"dislike":  a.cmdDislike,
		"describe": a.cmdDescribe,
		"tag":      a.cmdTag,
		"upload":   a.cmdUpload,
		"delete":   a.cmdDelete,
		"tags":     a.cmdTags,
		"download": a.cmdDownload,
		"bot":      a.cmdBot,
	}
	fn, ok := commands[name]
	if !ok {
		fmt.Fprint(a.errOut, usageText)
		return fmt.Errorf("unknown command %q", name)
	}
	return fn(ctx, args)
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

// splitTags accepts "a,b" as well as separate arguments.
func splitTags(args ...string) []string {
	var out []string
	for _, arg := range args {
		out = append(out, strings.Split(arg, ",")...)
	}
	return domain.NormalizeTags(out)
}

func (a *app) requireID(name string, args []string) (string, error) {
	if len(args) != 1 {
		fmt.Fprintf(a.errOut, "usage: doro %s <id>\n", name)
		return "", errUsage
	}
	return args[0], nil
}

func (a *app) printStickers(items []domain.Sticker) {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDESCRIPTION\tLIKES\tDISLIKES\tSIZE\tTAGS")
	for _, s := range items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			s.ID, s.Description, s.Likes, s.Dislikes, domain.FormatFileSize(s.FileSize), strings.Join(s.Tags, ","))
	}
	tw.Flush()
}

func (a *app) cmdList(ctx context.Context, args []string) error {
	fs := a.flagSet("list")
	sortBy := fs.String("sort", a.cfg.SortBy, "created_at, likes or dislikes")
	search := fs.String("search", "", "search text")
	tags := fs.String("tags", "", "comma separated tag filter")
	pages := fs.Int("pages", 1, "number of pages to load")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	sort, ok := domain.ParseSortType(*sortBy)
	if !ok {
		return fmt.Errorf("unknown sort order %q", *sortBy)
	}

	g := a.gallery(ctx, sort)
	g.SetSearch(*search)
	g.SetSelectedTags(splitTags(*tags))
	if err := g.Fetch(ctx, true); err != nil {
		return err
	}
	for i := 1; i < *pages && g.HasMore(); i++ {
		if err := g.LoadMore(ctx); err != nil {
			return err
		}
	}

	items := g.Stickers()
	a.printStickers(items)
	page, last, total := g.Pagination()
	fmt.Fprintf(a.out, "\n%d of %d stickers, page %d/%d\n", len(items), total, page, max(last, 1))
	return nil
}

func (a *app) cmdGet(ctx context.Context, args []string) error {
	id, err := a.requireID("get", args)
	if err != nil {
		return err
	}
	g := a.gallery(ctx, "")
	s, err := g.FetchDetail(ctx, id)
	if err != nil {
		return err
	}

	reaction := "none"
	switch {
	case g.Ledger().HasLiked(s.ID):
		reaction = "liked"
	case g.Ledger().HasDisliked(s.ID):
		reaction = "disliked"
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\n", s.ID)
	fmt.Fprintf(tw, "Description\t%s\n", s.Description)
	fmt.Fprintf(tw, "URL\t%s\n", s.URL)
	fmt.Fprintf(tw, "MD5\t%s\n", s.MD5)
	fmt.Fprintf(tw, "Size\t%s\n", domain.FormatFileSize(s.FileSize))
	fmt.Fprintf(tw, "Dimensions\t%dx%d\n", s.Width, s.Height)
	fmt.Fprintf(tw, "Likes\t%d\n", s.Likes)
	fmt.Fprintf(tw, "Dislikes\t%d\n", s.Dislikes)
	fmt.Fprintf(tw, "Tags\t%s\n", strings.Join(s.Tags, ", "))
	fmt.Fprintf(tw, "Created\t%s\n", s.CreatedAt)
	fmt.Fprintf(tw, "Your reaction\t%s\n", reaction)
	return tw.Flush()
}

func (a *app) cmdLike(ctx context.Context, args []string) error {
	id, err := a.requireID("like", args)
	if err != nil {
		return err
	}
	res, err := a.gallery(ctx, "").Like(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %d likes, %d dislikes\n", id, res.Sticker.Likes, res.Sticker.Dislikes)
	return nil
}

func (a *app) cmdDislike(ctx context.Context, args []string) error {
	id, err := a.requireID("dislike", args)
	if err != nil {
		return err
	}
	res, err := a.gallery(ctx, "").Dislike(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %d likes, %d dislikes\n", id, res.Sticker.Likes, res.Sticker.Dislikes)
	return nil
}

func (a *app) cmdDescribe(ctx context.Context, args []string) error {
	if len(args) < 2 {
		fmt.Fprintln(a.errOut, "usage: doro describe <id> <text...>")
		return errUsage
	}
	_, err := a.gallery(ctx, "").UpdateDescription(ctx, args[0], strings.Join(args[1:], " "))
	return err
}

func (a *app) cmdTag(ctx context.Context, args []string) error {
	if len(args) < 1 {
		fmt.Fprintln(a.errOut, "usage: doro tag <id> <t1,t2...>")
		return errUsage
	}
	s, err := a.gallery(ctx, "").UpdateTags(ctx, args[0], splitTags(args[1:]...))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: %s\n", s.ID, strings.Join(s.Tags, ", "))
	return nil
}

func (a *app) cmdUpload(ctx context.Context, args []string) error {
	fs := a.flagSet("upload")
	content := fs.String("content", "", "description of the sticker")
	tags := fs.String("tags", "", "comma separated tags")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.errOut, "usage: doro upload [-content text] [-tags a,b] <file>")
		return errUsage
	}

	path := fs.Arg(0)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	ok, err := a.gallery(ctx, "").Upload(ctx, filepath.Base(path), f, *content, splitTags(*tags))
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("upload rejected")
	}
	return nil
}

func (a *app) cmdDelete(ctx context.Context, args []string) error {
	id, err := a.requireID("delete", args)
	if err != nil {
		return err
	}
	return a.gallery(ctx, "").Delete(ctx, id)
}

func (a *app) cmdTags(ctx context.Context, _ []string) error {
	tags, err := a.gallery(ctx, "").FetchPopularTags(ctx)
	if err != nil {
		return err
	}
	for _, t := range tags {
		fmt.Fprintln(a.out, t)
	}
	return nil
}

func (a *app) cmdDownload(ctx context.Context, args []string) error {
	fs := a.flagSet("download")
	outDir := fs.String("out", "", "output directory (default OUTPUT_DIR)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	ids := fs.Args()
	if len(ids) == 0 {
		fmt.Fprintln(a.errOut, "usage: doro download [-out dir] <id...>")
		return errUsage
	}

	var items []domain.Sticker
	for _, id := range ids {
		s, err := a.client.GetSticker(ctx, id)
		if err != nil {
			a.log.WithError(err).WithField("sticker_id", id).Warn("Skipping sticker that could not be fetched")
			fmt.Fprintf(a.errOut, "error: sticker %s: %v\n", id, err)
			continue
		}
		items = append(items, *s)
	}
	if len(items) == 0 {
		return errors.New("no sticker could be fetched")
	}

	d := a.downloader(*outDir)
	if len(items) == 1 {
		loc, err := d.DownloadOne(ctx, items[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, loc)
		return nil
	}

	report, err := d.DownloadBatch(ctx, items)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, report.Location)
	fmt.Fprintf(a.errOut, "archived %d of %d sticker(s)\n", report.Archived, report.Requested)
	for _, id := range report.Failed {
		fmt.Fprintf(a.errOut, "error: sticker %s could not be retrieved\n", id)
	}
	return nil
}

func (a *app) cmdBot(ctx context.Context, _ []string) error {
	if err := a.cfg.RequireBotToken(); err != nil {
		return err
	}
	h, err := bot.NewHandler(a.cfg, a.client, a.repo, a.retriever, a.log)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Start(ctx)
	}()
	a.log.Info("Bot is running. Press Ctrl+C to exit.")

	<-ctx.Done()
	a.log.Info("Shutting down bot...")
	// Start returns once in-flight commands are done with the database.
	<-done
	return nil
}
