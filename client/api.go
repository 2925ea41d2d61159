package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"

	"github.com/antonholmquist/jason"
	"github.com/pkg/errors"

	"github.com/ndlib/folio/failure"
)

// A Connection is a connection with a folio server.
// It can be shared between multiple goroutines.
type Connection struct {
	// The folio server this connection is to, e.g. "http://localhost:14000"
	HostURL string
	// Token is sent as the X-Api-Key of every request made by the
	// Connection's own methods. Empty means anonymous.
	Token string

	// Client is used for every request. nil means http.DefaultClient.
	Client *http.Client
}

// ErrNotModified is returned by the conditional reads when the server's copy
// has the fingerprint we sent.
var ErrNotModified = errors.New("not modified")

// ErrBadEnvelope means the server replied with something which was not a
// folio response.
var ErrBadEnvelope = errors.New("malformed response envelope")

// doJSON sends a request and decodes the data member of the response
// envelope into out. An error envelope is turned back into the failure class
// the server reported.
func (c *Connection) doJSON(ctx context.Context, method, path, token string, header http.Header, body interface{}, out interface{}) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.HostURL+path, r)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("X-Api-Key", token)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return failure.StorageUnavailable.Wrap(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotModified {
		return ErrNotModified
	}
	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return failure.StorageUnavailable.Wrap(err)
	}
	v, err := jason.NewObjectFromBytes(data)
	if err != nil {
		return errors.Wrapf(ErrBadEnvelope, "received status %d from folio", resp.StatusCode)
	}
	ok, err := v.GetBoolean("ok")
	if err != nil {
		return errors.Wrapf(ErrBadEnvelope, "received status %d from folio", resp.StatusCode)
	}
	if !ok {
		code, _ := v.GetString("error", "code")
		message, _ := v.GetString("error", "message")
		return failure.FromCode(code, message)
	}
	if out == nil {
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err = json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	return json.Unmarshal(envelope.Data, out)
}

func (c *Connection) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func scopePath(kind string, sc fmt.Stringer, rest ...string) string {
	p := "/" + kind + "/" + url.PathEscape(sc.String())
	for _, s := range rest {
		p += "/" + url.PathEscape(s)
	}
	return p
}
