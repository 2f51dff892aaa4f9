// Package plugin hosts the bot's feature plugins and their runtime:
// a lifecycle manager (Init/Start/Stop in registration order) and a
// command manager that routes Telegram messages ("/cmd sub args") and
// inline-button callbacks ("plugin:action:payload") to registered
// handlers through a bounded worker pool.
package plugin
