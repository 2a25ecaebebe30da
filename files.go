package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skymux/skymux-go/internal/cloud"
	"github.com/skymux/skymux-go/internal/session"
)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List files and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <remote-path> [local-path]",
		Short: "Download a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}
}

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-path> [remote-folder]",
		Short: "Upload a file",
		Long: `Upload a local file into a remote folder (root when omitted). An
existing file with the same name fails the upload; pass --overwrite
to replace its content instead.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runPut,
	}

	cmd.Flags().Bool("overwrite", false, "replace an existing file's content")

	return cmd
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or folder",
		Long: `Delete a file or folder on the remote. Folder deletion is recursive —
use --recursive (-r) to confirm intent when deleting folders.`,
		Args: cobra.ExactArgs(1),
		RunE: runRm,
	}

	cmd.Flags().BoolP("recursive", "r", false, "confirm recursive folder deletion")

	return cmd
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder (recursive)",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <file-path> <target-folder>",
		Short: "Move a file into another folder",
		Args:  cobra.ExactArgs(2),
		RunE:  runMv,
	}
}

func newRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <path> <new-name>",
		Short: "Rename a file or folder in place",
		Args:  cobra.ExactArgs(2),
		RunE:  runRename,
	}
}

// cleanRemotePath strips leading/trailing slashes, returns "" for root.
func cleanRemotePath(path string) string {
	return strings.Trim(path, "/")
}

// splitParentAndName splits a remote path into parent path and name.
// For "foo/bar/baz" returns ("foo/bar", "baz"); for "baz", ("", "baz").
func splitParentAndName(path string) (string, string) {
	clean := cleanRemotePath(path)

	idx := strings.LastIndex(clean, "/")
	if idx < 0 {
		return "", clean
	}

	return clean[:idx], clean[idx+1:]
}

// findChild returns the entry in entries matching name. An exact
// normalized match wins; failing that, a case-folded match is
// accepted, since the built-in backends treat names
// case-insensitively.
func findChild(entries []cloud.Entry, name string) (cloud.Entry, bool) {
	for _, e := range entries {
		if cloud.SameName(e.Name(), name) {
			return e, true
		}
	}

	for _, e := range entries {
		if cloud.SameNameFold(e.Name(), name) {
			return e, true
		}
	}

	return cloud.Entry{}, false
}

// resolveFolder walks the remote path one listing per segment and
// returns the folder it names. "" or "/" is the root.
func resolveFolder(ctx context.Context, sess *session.Session, path string) (cloud.Folder, error) {
	current := cloud.Root()

	clean := cleanRemotePath(path)
	if clean == "" {
		return current, nil
	}

	for _, segment := range strings.Split(clean, "/") {
		entries, err := sess.ListChildren(ctx, current).Wait(ctx)
		if err != nil {
			return cloud.Folder{}, err
		}

		var folders []cloud.Entry

		for _, e := range entries {
			if e.IsFolder {
				folders = append(folders, e)
			}
		}

		e, ok := findChild(folders, segment)
		if !ok {
			return cloud.Folder{}, fmt.Errorf("folder %q: %w", segment, cloud.ErrNotFound)
		}

		current = e.Folder
	}

	return current, nil
}

// resolveEntry resolves a remote path to the entry it names.
func resolveEntry(ctx context.Context, sess *session.Session, path string) (cloud.Entry, error) {
	parentPath, name := splitParentAndName(path)
	if name == "" {
		return cloud.FolderEntry(cloud.Root()), nil
	}

	parent, err := resolveFolder(ctx, sess, parentPath)
	if err != nil {
		return cloud.Entry{}, err
	}

	entries, err := sess.ListChildren(ctx, parent).Wait(ctx)
	if err != nil {
		return cloud.Entry{}, err
	}

	if e, ok := findChild(entries, name); ok {
		return e, nil
	}

	return cloud.Entry{}, fmt.Errorf("%q: %w", path, cloud.ErrNotFound)
}

// resolveFile resolves a remote path and requires it to be a file.
func resolveFile(ctx context.Context, sess *session.Session, path string) (cloud.File, error) {
	entry, err := resolveEntry(ctx, sess, path)
	if err != nil {
		return cloud.File{}, err
	}

	if entry.IsFolder {
		return cloud.File{}, fmt.Errorf("%q is a folder", path)
	}

	return entry.File, nil
}

// lsOutput is the JSON schema for `ls --json`.
type lsOutput struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Size     int64  `json:"size,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	ID       string `json:"id"`
}

func runLs(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}

	folder, err := resolveFolder(cmd.Context(), sess, path)
	if err != nil {
		return err
	}

	entries, err := sess.ListChildren(cmd.Context(), folder).Wait(cmd.Context())
	if err != nil {
		return err
	}

	if flagJSON {
		out := make([]lsOutput, 0, len(entries))

		for _, e := range entries {
			o := lsOutput{Name: e.Name(), Type: "file"}
			if e.IsFolder {
				o.Type = "folder"
				o.ID = e.Folder.ID
			} else {
				o.Size = e.File.Size
				o.MIMEType = e.File.MIMEType
				o.ID = e.File.ID
			}

			out = append(out, o)
		}

		return json.NewEncoder(os.Stdout).Encode(out)
	}

	rows := make([][]string, 0, len(entries))

	for _, e := range entries {
		if e.IsFolder {
			rows = append(rows, []string{"d", "-", e.Folder.Name})
		} else {
			rows = append(rows, []string{"-", formatSize(e.File.Size), e.File.Name})
		}
	}

	printTable(os.Stdout, []string{"T", "SIZE", "NAME"}, rows)

	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	remotePath := args[0]

	localPath := filepath.Base(cleanRemotePath(remotePath))
	if len(args) == 2 {
		localPath = args[1]
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}

	file, err := resolveFile(cmd.Context(), sess, remotePath)
	if err != nil {
		return err
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", localPath, err)
	}

	if _, err := sess.Download(cmd.Context(), file, out).Wait(cmd.Context()); err != nil {
		out.Close()
		os.Remove(localPath)

		return err
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", localPath, err)
	}

	statusf("Downloaded %s (%s).\n", file.Name, formatSize(file.Size))

	return nil
}

func runPut(cmd *cobra.Command, args []string) error {
	localPath := args[0]

	remoteFolder := ""
	if len(args) == 2 {
		remoteFolder = args[1]
	}

	overwrite, _ := cmd.Flags().GetBool("overwrite")

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}

	dest, err := resolveFolder(cmd.Context(), sess, remoteFolder)
	if err != nil {
		return err
	}

	in, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer in.Close()

	name := filepath.Base(localPath)

	file, err := sess.Upload(cmd.Context(), in, name, dest).Wait(cmd.Context())
	if err == nil {
		statusf("Uploaded %s (%s).\n", file.Name, formatSize(file.Size))

		return nil
	}

	if !overwrite || !errors.Is(err, cloud.ErrNameConflict) {
		return err
	}

	// Replace the existing file's content instead.
	existing, resolveErr := resolveFile(cmd.Context(), sess, cleanRemotePath(remoteFolder)+"/"+name)
	if resolveErr != nil {
		return resolveErr
	}

	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding %s: %w", localPath, err)
	}

	file, err = sess.Update(cmd.Context(), existing, in).Wait(cmd.Context())
	if err != nil {
		return err
	}

	statusf("Updated %s (%s).\n", file.Name, formatSize(file.Size))

	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	recursive, _ := cmd.Flags().GetBool("recursive")

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}

	entry, err := resolveEntry(cmd.Context(), sess, args[0])
	if err != nil {
		return err
	}

	if entry.IsFolder {
		if !recursive {
			return fmt.Errorf("%q is a folder — pass --recursive to delete it and its contents", args[0])
		}

		if _, err := sess.DeleteFolder(cmd.Context(), entry.Folder).Wait(cmd.Context()); err != nil {
			return err
		}
	} else {
		if _, err := sess.DeleteFile(cmd.Context(), entry.File).Wait(cmd.Context()); err != nil {
			return err
		}
	}

	statusf("Deleted %s.\n", args[0])

	return nil
}

func runMkdir(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}

	current := cloud.Root()

	clean := cleanRemotePath(args[0])
	if clean == "" {
		return errors.New("mkdir: empty path")
	}

	for _, segment := range strings.Split(clean, "/") {
		entries, err := sess.ListChildren(cmd.Context(), current).Wait(cmd.Context())
		if err != nil {
			return err
		}

		var folders []cloud.Entry

		for _, e := range entries {
			if e.IsFolder {
				folders = append(folders, e)
			}
		}

		next := cloud.Folder{}

		if e, ok := findChild(folders, segment); ok {
			next = e.Folder
		} else {
			next, err = sess.CreateFolder(cmd.Context(), segment, current).Wait(cmd.Context())
			if err != nil {
				return err
			}
		}

		current = next
	}

	statusf("Created %s.\n", args[0])

	return nil
}

func runMv(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}

	file, err := resolveFile(cmd.Context(), sess, args[0])
	if err != nil {
		return err
	}

	target, err := resolveFolder(cmd.Context(), sess, args[1])
	if err != nil {
		return err
	}

	moved, err := sess.Move(cmd.Context(), file, target).Wait(cmd.Context())
	if err != nil {
		return err
	}

	statusf("Moved %s to %s.\n", moved.Name, args[1])

	return nil
}

func runRename(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}

	entry, err := resolveEntry(cmd.Context(), sess, args[0])
	if err != nil {
		return err
	}

	newName := args[1]

	if entry.IsFolder {
		folder, err := sess.RenameFolder(cmd.Context(), entry.Folder, newName).Wait(cmd.Context())
		if err != nil {
			return err
		}

		statusf("Renamed folder to %s.\n", folder.Name)

		return nil
	}

	file, err := sess.RenameFile(cmd.Context(), entry.File, newName).Wait(cmd.Context())
	if err != nil {
		return err
	}

	statusf("Renamed file to %s.\n", file.Name)

	return nil
}
