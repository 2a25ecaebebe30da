package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skymux/skymux-go/internal/cloud"
)

func testCreds() cloud.Credentials {
	return cloud.Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://127.0.0.1:9000/callback",
	}
}

// newTestAdapter points every endpoint at the same httptest server.
func newTestAdapter(t *testing.T, srvURL string) *Adapter {
	t.Helper()

	return New(testCreds(),
		WithEndpoints(srvURL+"/oauth2/authorize", srvURL+"/oauth2/token"),
		WithBaseURLs(srvURL, srvURL),
	)
}

func testAccount() cloud.Account {
	return cloud.Account{
		ID:          "dbid:abc",
		ProviderID:  ProviderID,
		AccessToken: "test-token",
		Status:      cloud.StatusActive,
	}
}

func TestBuildAuthorizationURI(t *testing.T) {
	a := New(testCreds())

	uri := a.BuildAuthorizationURI("state-xyz")

	assert.Contains(t, uri, "https://www.dropbox.com/oauth2/authorize")
	assert.Contains(t, uri, "state=state-xyz")
	assert.Contains(t, uri, "client_id=client-id")
	assert.Contains(t, uri, "token_access_type=offline")
}

func TestExchangeToken_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth2/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "auth-code", r.PostForm.Get("code"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"access_token": "tok",
			"refresh_token": "refresh-tok",
			"token_type": "bearer",
			"expires_in": 3600
		}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	tokens, err := a.ExchangeToken(context.Background(), "auth-code")
	require.NoError(t, err)

	assert.Equal(t, "tok", tokens.AccessToken)
	assert.Equal(t, "refresh-tok", tokens.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tokens.Expiry, 30*time.Second)
}

func TestExchangeToken_BackendRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": "invalid_grant"}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	_, err := a.ExchangeToken(context.Background(), "bad-code")
	assert.ErrorIs(t, err, cloud.ErrTokenExchange)
}

func TestRefreshToken_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "new-tok", "token_type": "bearer", "expires_in": 3600}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	tokens, err := a.RefreshToken(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-tok", tokens.AccessToken)
}

func TestRefreshToken_InvalidGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": "invalid_grant"}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	_, err := a.RefreshToken(context.Background(), "revoked")
	assert.ErrorIs(t, err, cloud.ErrRefresh)
}

func TestRefreshToken_TransportFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // connection refused

	a := newTestAdapter(t, srv.URL)

	_, err := a.RefreshToken(context.Background(), "old-refresh")
	assert.ErrorIs(t, err, cloud.ErrTransport)
	assert.NotErrorIs(t, err, cloud.ErrRefresh)
}

func TestFetchProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2/users/get_current_account", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"account_id": "dbid:abc",
			"name": {"display_name": "Ada Lovelace"},
			"email": "ada@example.com",
			"profile_photo_url": "https://example.com/ada.jpg"
		}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	id, profile, err := a.FetchProfile(context.Background(), "test-token")
	require.NoError(t, err)

	assert.Equal(t, "dbid:abc", id)
	assert.Equal(t, "Ada Lovelace", profile.Name)
	assert.Equal(t, "ada@example.com", profile.Email)
	assert.Equal(t, "https://example.com/ada.jpg", profile.AvatarURL)
}

func TestListChildren_Paginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/2/files/list_folder":
			fmt.Fprint(w, `{
				"entries": [
					{".tag": "folder", "id": "id:f1", "name": "Docs", "path_display": "/Docs"},
					{".tag": "file", "id": "id:a1", "name": "a.txt", "path_display": "/a.txt", "size": 10}
				],
				"cursor": "cursor-1",
				"has_more": true
			}`)
		case "/2/files/list_folder/continue":
			var body struct {
				Cursor string `json:"cursor"`
			}
			require.NoError(t, readJSON(r, &body))
			assert.Equal(t, "cursor-1", body.Cursor)

			fmt.Fprint(w, `{
				"entries": [{".tag": "file", "id": "id:b1", "name": "b.txt", "path_display": "/b.txt", "size": 20}],
				"cursor": "cursor-2",
				"has_more": false
			}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	entries, err := a.ListChildren(context.Background(), testAccount(), cloud.Root())
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.True(t, entries[0].IsFolder)
	assert.Equal(t, "Docs", entries[0].Name())
	assert.Equal(t, "", entries[0].Folder.ParentID)
	assert.False(t, entries[1].IsFolder)
	assert.Equal(t, int64(10), entries[1].File.Size)
	assert.Equal(t, "b.txt", entries[2].Name())
}

func readJSON(r *http.Request, out any) error {
	defer r.Body.Close()

	return json.NewDecoder(r.Body).Decode(out)
}

func TestUploadFile_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/files/upload", r.URL.Path)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		assert.Contains(t, r.Header.Get("Dropbox-API-Arg"), `"path":"/Docs/new.txt"`)
		assert.Contains(t, r.Header.Get("Dropbox-API-Arg"), `"autorename":false`)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(body))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "id:new", "name": "new.txt", "path_display": "/Docs/new.txt", "size": 11}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	dest := cloud.Folder{ID: "id:f1", Path: "/Docs"}

	file, err := a.UploadFile(context.Background(), testAccount(), strings.NewReader("hello world"), "new.txt", dest)
	require.NoError(t, err)

	assert.Equal(t, "id:new", file.ID)
	assert.Equal(t, "/Docs/new.txt", file.Path)
	assert.Equal(t, int64(11), file.Size)
	assert.Equal(t, "/Docs", file.ParentID)
}

func TestUploadFile_NameConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"error_summary": "path/conflict/file/", "error": {}}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	_, err := a.UploadFile(context.Background(), testAccount(), strings.NewReader("x"), "taken.txt", cloud.Root())
	assert.ErrorIs(t, err, cloud.ErrNameConflict)
}

func TestClassify_ErrorSummaries(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		body    string
		wantErr error
	}{
		{"not found", http.StatusConflict, `{"error_summary": "path_lookup/not_found/"}`, cloud.ErrNotFound},
		{"conflict", http.StatusConflict, `{"error_summary": "path/conflict/folder/"}`, cloud.ErrNameConflict},
		{"quota", http.StatusConflict, `{"error_summary": "path/insufficient_space/"}`, cloud.ErrQuotaExceeded},
		{"unparseable 409", http.StatusConflict, `not json`, cloud.ErrNameConflict},
		{"unauthorized", http.StatusUnauthorized, `{}`, cloud.ErrUnauthorized},
		{"server fault", http.StatusInternalServerError, `{}`, cloud.ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.code, []byte(tt.body))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/files/download", r.URL.Path)
		assert.Contains(t, r.Header.Get("Dropbox-API-Arg"), `"path":"/a.txt"`)

		fmt.Fprint(w, "file contents")
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	var buf bytes.Buffer
	err := a.DownloadFile(context.Background(), testAccount(), cloud.File{ID: "id:a1", Path: "/a.txt"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, "file contents", buf.String())
}

func TestDownloadFile_Missing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"error_summary": "path/not_found/"}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	err := a.DownloadFile(context.Background(), testAccount(), cloud.File{Path: "/gone.txt"}, io.Discard)
	assert.ErrorIs(t, err, cloud.ErrNotFound)
}

func TestRenameFile_UsesMove(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/files/move_v2", r.URL.Path)

		var body struct {
			FromPath   string `json:"from_path"`
			ToPath     string `json:"to_path"`
			Autorename bool   `json:"autorename"`
		}
		require.NoError(t, readJSON(r, &body))
		assert.Equal(t, "/Docs/old.txt", body.FromPath)
		assert.Equal(t, "/Docs/new.txt", body.ToPath)
		assert.False(t, body.Autorename)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"metadata": {".tag": "file", "id": "id:a1", "name": "new.txt", "path_display": "/Docs/new.txt"}}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	file, err := a.RenameFile(context.Background(), testAccount(), cloud.File{ID: "id:a1", Path: "/Docs/old.txt"}, "new.txt")
	require.NoError(t, err)
	assert.Equal(t, "new.txt", file.Name)
	assert.Equal(t, "/Docs/new.txt", file.Path)
}

func TestMoveFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			FromPath string `json:"from_path"`
			ToPath   string `json:"to_path"`
		}
		require.NoError(t, readJSON(r, &body))
		assert.Equal(t, "/a.txt", body.FromPath)
		assert.Equal(t, "/Archive/a.txt", body.ToPath)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"metadata": {".tag": "file", "id": "id:a1", "name": "a.txt", "path_display": "/Archive/a.txt"}}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	file := cloud.File{ID: "id:a1", Name: "a.txt", Path: "/a.txt"}
	target := cloud.Folder{ID: "id:arch", Path: "/Archive"}

	moved, err := a.MoveFile(context.Background(), testAccount(), file, target)
	require.NoError(t, err)
	assert.Equal(t, "/Archive/a.txt", moved.Path)
}

func TestCreateFolder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/files/create_folder_v2", r.URL.Path)

		var body struct {
			Path       string `json:"path"`
			Autorename bool   `json:"autorename"`
		}
		require.NoError(t, readJSON(r, &body))
		assert.Equal(t, "/Reports", body.Path)
		assert.False(t, body.Autorename)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"metadata": {"id": "id:rep", "name": "Reports", "path_display": "/Reports"}}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	folder, err := a.CreateFolder(context.Background(), testAccount(), "Reports", cloud.Root())
	require.NoError(t, err)
	assert.Equal(t, "id:rep", folder.ID)
	assert.Equal(t, "Reports", folder.Name)
}

func TestDeleteFile_AlreadyGone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"error_summary": "path_lookup/not_found/"}`)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	err := a.DeleteFile(context.Background(), testAccount(), cloud.File{Path: "/gone.txt"})
	assert.ErrorIs(t, err, cloud.ErrNotFound)
}

func TestLogout_RevokesToken(t *testing.T) {
	var revoked bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/auth/token/revoke", r.URL.Path)
		revoked = true

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)

	err := a.Logout(context.Background(), testAccount())
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestLogout_ToleratesBackendFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	a := newTestAdapter(t, srv.URL)

	err := a.Logout(context.Background(), testAccount())
	assert.NoError(t, err)
}
