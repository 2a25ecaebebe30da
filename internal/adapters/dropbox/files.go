package dropbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/skymux/skymux-go/internal/cloud"
	"github.com/skymux/skymux-go/internal/httpapi"
)

// entryMetadata mirrors the Dropbox Metadata union. The ".tag"
// discriminator selects file vs folder.
type entryMetadata struct {
	Tag            string `json:".tag"` //nolint:tagliatelle // Dropbox union discriminator
	ID             string `json:"id"`
	Name           string `json:"name"`
	PathLower      string `json:"path_lower"`
	PathDisplay    string `json:"path_display"`
	Size           int64  `json:"size"`
	ServerModified string `json:"server_modified"`
}

type listFolderResponse struct {
	Entries []entryMetadata `json:"entries"`
	Cursor  string          `json:"cursor"`
	HasMore bool            `json:"has_more"`
}

// toEntry converts Dropbox metadata into a contract entry. Dropbox
// does not return MIME types; the field stays empty.
func (m *entryMetadata) toEntry() cloud.Entry {
	if m.Tag == "folder" {
		return cloud.FolderEntry(cloud.Folder{
			ID:       m.ID,
			Name:     m.Name,
			Path:     m.PathDisplay,
			ParentID: parentPath(m.PathDisplay),
		})
	}

	return cloud.FileEntry(cloud.File{
		ID:       m.ID,
		Name:     m.Name,
		Size:     m.Size,
		Path:     m.PathDisplay,
		ParentID: parentPath(m.PathDisplay),
	})
}

// parentPath derives the containing folder's path reference. Dropbox
// addresses by path, so the parent "id" is the parent path ("" = root).
func parentPath(p string) string {
	dir := path.Dir(p)
	if dir == "/" || dir == "." {
		return ""
	}

	return dir
}

// folderArgPath maps a contract folder to Dropbox's path argument.
// The root folder is the empty string.
func folderArgPath(f cloud.Folder) string {
	if f.ID == "root" || f.Path == "" && f.ID == "" {
		return ""
	}

	return f.Path
}

// ListChildren lists one folder level. Pagination uses
// /2/files/list_folder/continue until has_more is false.
func (a *Adapter) ListChildren(ctx context.Context, account cloud.Account, folder cloud.Folder) ([]cloud.Entry, error) {
	var entries []cloud.Entry

	var resp listFolderResponse

	err := a.api.DoJSON(ctx, httpapi.Request{
		Method:      http.MethodPost,
		Path:        "/2/files/list_folder",
		AccessToken: account.AccessToken,
	}, map[string]any{"path": folderArgPath(folder)}, &resp)
	if err != nil {
		return nil, err
	}

	for {
		for i := range resp.Entries {
			entries = append(entries, resp.Entries[i].toEntry())
		}

		if !resp.HasMore {
			return entries, nil
		}

		cursor := resp.Cursor
		resp = listFolderResponse{}

		err := a.api.DoJSON(ctx, httpapi.Request{
			Method:      http.MethodPost,
			Path:        "/2/files/list_folder/continue",
			AccessToken: account.AccessToken,
		}, map[string]string{"cursor": cursor}, &resp)
		if err != nil {
			return nil, err
		}
	}
}

// uploadArg is the Dropbox-API-Arg payload for content uploads.
type uploadArg struct {
	Path       string `json:"path"`
	Mode       string `json:"mode"`
	Autorename bool   `json:"autorename"`
}

func apiArg(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("dropbox: encoding API arg: %w", err)
	}

	return string(data), nil
}

// UploadFile stores content at dest/name. mode=add with
// autorename=false makes an existing name fail with a conflict rather
// than silently renaming.
func (a *Adapter) UploadFile(ctx context.Context, account cloud.Account, content io.Reader, name string, dest cloud.Folder) (cloud.File, error) {
	return a.putContent(ctx, account, content, uploadArg{
		Path:       folderArgPath(dest) + "/" + name,
		Mode:       "add",
		Autorename: false,
	})
}

// UpdateFile overwrites the remote file's content in place.
func (a *Adapter) UpdateFile(ctx context.Context, account cloud.Account, file cloud.File, content io.Reader) (cloud.File, error) {
	return a.putContent(ctx, account, content, uploadArg{
		Path: file.Path,
		Mode: "overwrite",
	})
}

func (a *Adapter) putContent(ctx context.Context, account cloud.Account, content io.Reader, arg uploadArg) (cloud.File, error) {
	argJSON, err := apiArg(arg)
	if err != nil {
		return cloud.File{}, err
	}

	header := http.Header{}
	header.Set("Dropbox-API-Arg", argJSON)

	resp, err := a.content.Do(ctx, httpapi.Request{
		Method:      http.MethodPost,
		Path:        "/2/files/upload",
		Body:        content,
		ContentType: "application/octet-stream",
		AccessToken: account.AccessToken,
		Header:      header,
	})
	if err != nil {
		return cloud.File{}, err
	}
	defer resp.Body.Close()

	var meta entryMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return cloud.File{}, fmt.Errorf("dropbox: decoding upload response: %w", err)
	}

	entry := meta.toEntry()

	return entry.File, nil
}

// DownloadFile streams the file content into w.
func (a *Adapter) DownloadFile(ctx context.Context, account cloud.Account, file cloud.File, w io.Writer) error {
	argJSON, err := apiArg(map[string]string{"path": file.Path})
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Dropbox-API-Arg", argJSON)

	resp, err := a.content.Do(ctx, httpapi.Request{
		Method:      http.MethodPost,
		Path:        "/2/files/download",
		AccessToken: account.AccessToken,
		Header:      header,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("dropbox: streaming download: %v: %w", err, cloud.ErrTransport)
	}

	return nil
}

// deleteByPath backs both DeleteFile and DeleteFolder — Dropbox uses
// one endpoint for either.
func (a *Adapter) deleteByPath(ctx context.Context, account cloud.Account, p string) error {
	return a.api.DoJSON(ctx, httpapi.Request{
		Method:      http.MethodPost,
		Path:        "/2/files/delete_v2",
		AccessToken: account.AccessToken,
	}, map[string]string{"path": p}, nil)
}

func (a *Adapter) DeleteFile(ctx context.Context, account cloud.Account, file cloud.File) error {
	return a.deleteByPath(ctx, account, file.Path)
}

func (a *Adapter) DeleteFolder(ctx context.Context, account cloud.Account, folder cloud.Folder) error {
	return a.deleteByPath(ctx, account, folder.Path)
}

type relocationResponse struct {
	Metadata entryMetadata `json:"metadata"`
}

// relocate backs move and rename — both are /2/files/move_v2 with a
// different destination path.
func (a *Adapter) relocate(ctx context.Context, account cloud.Account, fromPath, toPath string) (cloud.Entry, error) {
	var resp relocationResponse

	err := a.api.DoJSON(ctx, httpapi.Request{
		Method:      http.MethodPost,
		Path:        "/2/files/move_v2",
		AccessToken: account.AccessToken,
	}, map[string]any{
		"from_path":  fromPath,
		"to_path":    toPath,
		"autorename": false,
	}, &resp)
	if err != nil {
		return cloud.Entry{}, err
	}

	return resp.Metadata.toEntry(), nil
}

func (a *Adapter) RenameFile(ctx context.Context, account cloud.Account, file cloud.File, newName string) (cloud.File, error) {
	entry, err := a.relocate(ctx, account, file.Path, parentPath(file.Path)+"/"+newName)
	if err != nil {
		return cloud.File{}, err
	}

	return entry.File, nil
}

func (a *Adapter) RenameFolder(ctx context.Context, account cloud.Account, folder cloud.Folder, newName string) (cloud.Folder, error) {
	entry, err := a.relocate(ctx, account, folder.Path, parentPath(folder.Path)+"/"+newName)
	if err != nil {
		return cloud.Folder{}, err
	}

	return entry.Folder, nil
}

func (a *Adapter) MoveFile(ctx context.Context, account cloud.Account, file cloud.File, target cloud.Folder) (cloud.File, error) {
	entry, err := a.relocate(ctx, account, file.Path, folderArgPath(target)+"/"+file.Name)
	if err != nil {
		return cloud.File{}, err
	}

	return entry.File, nil
}

type createFolderResponse struct {
	Metadata entryMetadata `json:"metadata"`
}

func (a *Adapter) CreateFolder(ctx context.Context, account cloud.Account, name string, parent cloud.Folder) (cloud.Folder, error) {
	var resp createFolderResponse

	err := a.api.DoJSON(ctx, httpapi.Request{
		Method:      http.MethodPost,
		Path:        "/2/files/create_folder_v2",
		AccessToken: account.AccessToken,
	}, map[string]any{
		"path":       folderArgPath(parent) + "/" + name,
		"autorename": false,
	}, &resp)
	if err != nil {
		return cloud.Folder{}, err
	}

	// create_folder_v2 metadata has no .tag; it is always a folder.
	resp.Metadata.Tag = "folder"

	entry := resp.Metadata.toEntry()

	return entry.Folder, nil
}
