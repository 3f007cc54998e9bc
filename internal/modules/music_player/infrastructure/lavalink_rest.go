package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/disgoorg/disgolink/v3/lavalink"
	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/application/ports"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// UpdatePlayer implements ports.NodeTransport.
func (n *LavalinkNode) UpdatePlayer(
	ctx context.Context,
	guildID snowflake.ID,
	update ports.PlayerUpdate,
) (*ports.PlayerInfo, error) {
	body, err := newPlayerUpdate(update)
	if err != nil {
		return nil, err
	}

	path, err := n.playerPath(guildID)
	if err != nil {
		return nil, err
	}
	if body.NoReplace {
		path += "?noReplace=true"
	}

	var player lavalink.Player
	if err := n.do(ctx, http.MethodPatch, path, body, &player); err != nil {
		return nil, fmt.Errorf("failed to update player: %w", err)
	}
	return convertPlayer(player)
}

// DestroyPlayer implements ports.NodeTransport. A player the node does not know is not an error.
func (n *LavalinkNode) DestroyPlayer(ctx context.Context, guildID snowflake.ID) error {
	path, err := n.playerPath(guildID)
	if err != nil {
		return err
	}

	err = n.do(ctx, http.MethodDelete, path, nil, nil)
	var respErr lavalink.Error
	if errors.As(err, &respErr) && respErr.Status == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to destroy player: %w", err)
	}
	return nil
}

// GetPlayer implements ports.NodeTransport.
func (n *LavalinkNode) GetPlayer(ctx context.Context, guildID snowflake.ID) (*ports.PlayerInfo, error) {
	path, err := n.playerPath(guildID)
	if err != nil {
		return nil, err
	}

	var player lavalink.Player
	if err := n.do(ctx, http.MethodGet, path, nil, &player); err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return convertPlayer(player)
}

// LoadTracks implements ports.NodeTransport.
// Empty and error results map to domain.ErrLoadFailed.
func (n *LavalinkNode) LoadTracks(ctx context.Context, identifier string) (domain.TrackList, error) {
	path := "/v4/loadtracks?identifier=" + url.QueryEscape(identifier)

	var result lavalink.LoadResult
	if err := n.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return domain.TrackList{}, fmt.Errorf("failed to load tracks: %w", err)
	}
	return convertLoadResult(result)
}

// convertLoadResult converts a Lavalink load result to a track list.
func convertLoadResult(result lavalink.LoadResult) (domain.TrackList, error) {
	switch data := result.Data.(type) {
	case lavalink.Track:
		return domain.TrackList{
			Type:          domain.TrackListTypeTrack,
			SelectedTrack: -1,
			Tracks:        []domain.Track{convertTrack(data)},
		}, nil

	case lavalink.Playlist:
		return domain.TrackList{
			Type:          domain.TrackListTypePlaylist,
			Name:          data.Info.Name,
			SelectedTrack: data.Info.SelectedTrack,
			Tracks:        convertTracks(data.Tracks),
		}, nil

	case lavalink.Search:
		return domain.TrackList{
			Type:          domain.TrackListTypeSearch,
			SelectedTrack: -1,
			Tracks:        convertTracks(data),
		}, nil

	case lavalink.Exception:
		return domain.TrackList{}, fmt.Errorf("%w: %s", domain.ErrLoadFailed, data.Message)

	default:
		return domain.TrackList{}, fmt.Errorf("%w: no matches", domain.ErrLoadFailed)
	}
}

// DecodeTrack implements ports.NodeTransport.
func (n *LavalinkNode) DecodeTrack(ctx context.Context, encoded string) (domain.Track, error) {
	path := "/v4/decodetrack?encodedTrack=" + url.QueryEscape(encoded)

	var track lavalink.Track
	if err := n.do(ctx, http.MethodGet, path, nil, &track); err != nil {
		return domain.Track{}, fmt.Errorf("failed to decode track: %w", err)
	}
	return convertTrack(track), nil
}

// Info implements ports.NodeTransport.
func (n *LavalinkNode) Info(ctx context.Context) (*ports.NodeInfo, error) {
	var info lavalink.Info
	if err := n.do(ctx, http.MethodGet, "/v4/info", nil, &info); err != nil {
		return nil, fmt.Errorf("failed to get node info: %w", err)
	}

	nodeInfo := &ports.NodeInfo{
		Version:        info.Version.Semver,
		BuildTime:      info.BuildTime.Time,
		JVM:            info.JVM,
		Lavaplayer:     info.Lavaplayer,
		SourceManagers: info.SourceManagers,
		Filters:        info.Filters,
	}
	for _, p := range info.Plugins {
		nodeInfo.Plugins = append(nodeInfo.Plugins, ports.PluginInfo{Name: p.Name, Version: p.Version})
	}
	return nodeInfo, nil
}

// configureResuming asks the node to keep sessionID alive across reconnects.
func (n *LavalinkNode) configureResuming(ctx context.Context, sessionID string) error {
	resuming := true
	timeout := int(n.config.ResumeTimeout / time.Second)
	body := lavalink.SessionUpdate{
		Resuming: &resuming,
		Timeout:  &timeout,
	}
	return n.do(ctx, http.MethodPatch, "/v4/sessions/"+sessionID, body, nil)
}

func (n *LavalinkNode) playerPath(guildID snowflake.ID) (string, error) {
	sessionID := n.SessionID()
	if sessionID == "" {
		return "", fmt.Errorf("%w: %s has no session", domain.ErrNodeUnavailable, n.config.Name)
	}
	return "/v4/sessions/" + sessionID + "/players/" + guildID.String(), nil
}

// do sends one REST request. body is encoded as JSON if non-nil; the response
// is decoded into out if non-nil.
func (n *LavalinkNode) do(ctx context.Context, method, path string, body, out any) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, n.restURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", n.config.Password)
	req.Header.Set("Client-Name", ClientName)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var respErr lavalink.Error
		if err := json.Unmarshal(data, &respErr); err != nil || respErr.Status == 0 {
			respErr = lavalink.Error{
				Status:      resp.StatusCode,
				StatusError: http.StatusText(resp.StatusCode),
				Message:     strconv.Quote(string(data)),
				Path:        path,
			}
		}
		return respErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
