package onecloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/skymux/skymux-go/internal/cloud"
	"github.com/skymux/skymux-go/internal/httpapi"
)

// listPageSize is the $top value for children listings. 200 is the
// collection maximum for drive items.
const listPageSize = 200

// driveItem mirrors the Graph driveItem JSON. The file/folder facets
// discriminate the entity kind.
type driveItem struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Size            int64        `json:"size"`
	File            *fileFacet   `json:"file"`
	Folder          *folderFacet `json:"folder"`
	ParentReference *parentRef   `json:"parentReference"`
}

type fileFacet struct {
	MimeType string `json:"mimeType"`
}

type folderFacet struct {
	ChildCount int `json:"childCount"`
}

type parentRef struct {
	ID string `json:"id"`
}

type childrenResponse struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"` //nolint:tagliatelle // OData annotation key
}

// toEntry converts a driveItem into a contract entry. The item id
// doubles as the Path reference since this backend addresses by id.
func (d *driveItem) toEntry() cloud.Entry {
	parentID := ""
	if d.ParentReference != nil {
		parentID = d.ParentReference.ID
	}

	if d.Folder != nil {
		return cloud.FolderEntry(cloud.Folder{
			ID:       d.ID,
			Name:     d.Name,
			Path:     d.ID,
			ParentID: parentID,
		})
	}

	entry := cloud.FileEntry(cloud.File{
		ID:       d.ID,
		Name:     d.Name,
		Size:     d.Size,
		Path:     d.ID,
		ParentID: parentID,
	})
	if d.File != nil {
		entry.File.MIMEType = d.File.MimeType
	}

	return entry
}

// itemPath returns the drive route for an item id. The contract root
// maps to the special /root segment.
func itemPath(id string) string {
	if id == "" || id == "root" {
		return "/v1.0/me/drive/root"
	}

	return "/v1.0/me/drive/items/" + url.PathEscape(id)
}

// ListChildren lists one folder level, following @odata.nextLink
// until the collection is exhausted.
func (a *Adapter) ListChildren(ctx context.Context, account cloud.Account, folder cloud.Folder) ([]cloud.Entry, error) {
	var entries []cloud.Entry

	next := itemPath(folder.ID) + fmt.Sprintf("/children?$top=%d", listPageSize)

	for next != "" {
		var resp childrenResponse

		err := a.api.DoJSON(ctx, httpapi.Request{
			Method:      http.MethodGet,
			Path:        next,
			AccessToken: account.AccessToken,
		}, nil, &resp)
		if err != nil {
			return nil, err
		}

		for i := range resp.Value {
			entries = append(entries, resp.Value[i].toEntry())
		}

		// nextLink is absolute; the client wants a host-relative path.
		next = strings.TrimPrefix(resp.NextLink, a.apiBase)
	}

	return entries, nil
}

// conflictFail makes a colliding write fail instead of auto-renaming.
const conflictFail = "@microsoft.graph.conflictBehavior=fail"

// UploadFile stores content as a new child of dest via the path-based
// content route. An existing name fails with ErrNameConflict.
func (a *Adapter) UploadFile(ctx context.Context, account cloud.Account, content io.Reader, name string, dest cloud.Folder) (cloud.File, error) {
	p := itemPath(dest.ID) + ":/" + url.PathEscape(name) + ":/content?" + conflictFail

	return a.putContent(ctx, account, p, content)
}

// UpdateFile overwrites the remote file's content in place.
func (a *Adapter) UpdateFile(ctx context.Context, account cloud.Account, file cloud.File, content io.Reader) (cloud.File, error) {
	return a.putContent(ctx, account, itemPath(file.ID)+"/content", content)
}

func (a *Adapter) putContent(ctx context.Context, account cloud.Account, path string, content io.Reader) (cloud.File, error) {
	resp, err := a.api.Do(ctx, httpapi.Request{
		Method:      http.MethodPut,
		Path:        path,
		Body:        content,
		ContentType: "application/octet-stream",
		AccessToken: account.AccessToken,
	})
	if err != nil {
		return cloud.File{}, err
	}
	defer resp.Body.Close()

	var item driveItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return cloud.File{}, fmt.Errorf("onecloud: decoding upload response: %w", err)
	}

	entry := item.toEntry()

	return entry.File, nil
}

// DownloadFile streams the file content into w. The /content route
// redirects to a pre-authenticated URL; the transport follows it.
func (a *Adapter) DownloadFile(ctx context.Context, account cloud.Account, file cloud.File, w io.Writer) error {
	resp, err := a.api.Do(ctx, httpapi.Request{
		Method:      http.MethodGet,
		Path:        itemPath(file.ID) + "/content",
		AccessToken: account.AccessToken,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("onecloud: streaming download: %v: %w", err, cloud.ErrTransport)
	}

	return nil
}

// deleteItem backs both delete operations — one DELETE route serves
// files and folders alike.
func (a *Adapter) deleteItem(ctx context.Context, account cloud.Account, id string) error {
	return a.api.DoJSON(ctx, httpapi.Request{
		Method:      http.MethodDelete,
		Path:        itemPath(id),
		AccessToken: account.AccessToken,
	}, nil, nil)
}

func (a *Adapter) DeleteFile(ctx context.Context, account cloud.Account, file cloud.File) error {
	return a.deleteItem(ctx, account, file.ID)
}

func (a *Adapter) DeleteFolder(ctx context.Context, account cloud.Account, folder cloud.Folder) error {
	return a.deleteItem(ctx, account, folder.ID)
}

// patchItem issues the metadata PATCH backing rename and move; both
// are partial updates of the same item resource.
func (a *Adapter) patchItem(ctx context.Context, account cloud.Account, id string, body any) (driveItem, error) {
	var item driveItem

	err := a.api.DoJSON(ctx, httpapi.Request{
		Method:      http.MethodPatch,
		Path:        itemPath(id) + "?" + conflictFail,
		AccessToken: account.AccessToken,
	}, body, &item)

	return item, err
}

func (a *Adapter) RenameFile(ctx context.Context, account cloud.Account, file cloud.File, newName string) (cloud.File, error) {
	item, err := a.patchItem(ctx, account, file.ID, map[string]string{"name": newName})
	if err != nil {
		return cloud.File{}, err
	}

	entry := item.toEntry()

	return entry.File, nil
}

func (a *Adapter) RenameFolder(ctx context.Context, account cloud.Account, folder cloud.Folder, newName string) (cloud.Folder, error) {
	item, err := a.patchItem(ctx, account, folder.ID, map[string]string{"name": newName})
	if err != nil {
		return cloud.Folder{}, err
	}

	entry := item.toEntry()

	return entry.Folder, nil
}

func (a *Adapter) MoveFile(ctx context.Context, account cloud.Account, file cloud.File, target cloud.Folder) (cloud.File, error) {
	item, err := a.patchItem(ctx, account, file.ID, map[string]any{
		"parentReference": map[string]string{"id": target.ID},
	})
	if err != nil {
		return cloud.File{}, err
	}

	entry := item.toEntry()

	return entry.File, nil
}

func (a *Adapter) CreateFolder(ctx context.Context, account cloud.Account, name string, parent cloud.Folder) (cloud.Folder, error) {
	var item driveItem

	err := a.api.DoJSON(ctx, httpapi.Request{
		Method:      http.MethodPost,
		Path:        itemPath(parent.ID) + "/children?" + conflictFail,
		AccessToken: account.AccessToken,
	}, map[string]any{
		"name":   name,
		"folder": map[string]any{},
	}, &item)
	if err != nil {
		return cloud.Folder{}, err
	}

	entry := item.toEntry()

	return entry.Folder, nil
}
