// Package model holds the OpenRTB 2.x subset exchanged by the auction server
// and the stored request records.
package model

import "encoding/json"

// BidRequest is the top-level auction request.
type BidRequest struct {
	ID     string          `json:"id,omitempty"`
	Imp    []Imp           `json:"imp,omitempty"`
	Site   *Site           `json:"site,omitempty"`
	App    *App            `json:"app,omitempty"`
	Device *Device         `json:"device,omitempty"`
	User   *User           `json:"user,omitempty"`
	Test   int             `json:"test,omitempty"`
	TMax   int64           `json:"tmax,omitempty"`
	Cur    []string        `json:"cur,omitempty"`
	BCat   []string        `json:"bcat,omitempty"`
	BAdv   []string        `json:"badv,omitempty"`
	Ext    json.RawMessage `json:"ext,omitempty"`
}

// Imp describes one ad placement being auctioned.
type Imp struct {
	ID          string          `json:"id,omitempty"`
	Banner      *Banner         `json:"banner,omitempty"`
	Video       *Video          `json:"video,omitempty"`
	TagID       string          `json:"tagid,omitempty"`
	BidFloor    float64         `json:"bidfloor,omitempty"`
	BidFloorCur string          `json:"bidfloorcur,omitempty"`
	Secure      *int            `json:"secure,omitempty"`
	Ext         json.RawMessage `json:"ext,omitempty"`
}

// Format is an allowed banner size.
type Format struct {
	W int `json:"w,omitempty"`
	H int `json:"h,omitempty"`
}

// Banner describes a display placement.
type Banner struct {
	Format []Format `json:"format,omitempty"`
	W      *int     `json:"w,omitempty"`
	H      *int     `json:"h,omitempty"`
	Pos    *int     `json:"pos,omitempty"`
}

// Video describes a video placement.
type Video struct {
	MIMEs       []string `json:"mimes,omitempty"`
	MinDuration int      `json:"minduration,omitempty"`
	MaxDuration int      `json:"maxduration,omitempty"`
	Protocols   []int    `json:"protocols,omitempty"`
	W           int      `json:"w,omitempty"`
	H           int      `json:"h,omitempty"`
}

// Publisher owns the site or app.
type Publisher struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Domain string `json:"domain,omitempty"`
}

// Site describes the website showing the ad.
type Site struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name,omitempty"`
	Domain    string     `json:"domain,omitempty"`
	Page      string     `json:"page,omitempty"`
	Ref       string     `json:"ref,omitempty"`
	Publisher *Publisher `json:"publisher,omitempty"`
}

// App describes the application showing the ad.
type App struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name,omitempty"`
	Bundle    string     `json:"bundle,omitempty"`
	StoreURL  string     `json:"storeurl,omitempty"`
	Publisher *Publisher `json:"publisher,omitempty"`
}

// Device describes the user's device.
type Device struct {
	UA       string `json:"ua,omitempty"`
	IP       string `json:"ip,omitempty"`
	IPv6     string `json:"ipv6,omitempty"`
	Language string `json:"language,omitempty"`
	OS       string `json:"os,omitempty"`
	DNT      *int   `json:"dnt,omitempty"`
}

// User describes the audience.
type User struct {
	ID       string `json:"id,omitempty"`
	BuyerUID string `json:"buyeruid,omitempty"`
}
