// Package notifier delivers banners and alarm notices to the operator.
//
// A notification names a channel ("console" or "telegram"), a priority, an
// optional chat target and a TTL. Delivery is asynchronous: Notify only
// enqueues, and a small worker pool sends through the registered
// transport.Sender for that channel with rate limiting, retries and
// duplicate suppression.
//
// # Banners
//
// Show fans a short message out to every banner channel. When the channel's
// sender can retract messages (transport.Deleter), the banner is removed
// again after Config.BannerTTL.
//
// # History
//
// The service keeps a small in-memory history of delivered notifications.
package notifier
