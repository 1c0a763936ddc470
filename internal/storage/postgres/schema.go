package postgres

const schema = `
create table if not exists treasury_balances (
	id uuid primary key,
	strategy_id text not null unique,
	owner_id text not null,
	total_deposited numeric not null default 0,
	total_withdrawn numeric not null default 0,
	available_balance numeric not null default 0,
	locked_balance numeric not null default 0,
	total_profits numeric not null default 0,
	total_losses numeric not null default 0,
	net_profit_loss numeric not null default 0,
	external_account_ref text not null default '',
	last_deposit_ref text not null default '',
	last_withdraw_ref text not null default '',
	created_at timestamptz not null,
	updated_at timestamptz not null
);

create index if not exists idx_balances_owner on treasury_balances (owner_id);

create table if not exists treasury_transactions (
	id uuid primary key,
	owner_id text not null,
	strategy_id text not null,
	balance_id uuid not null references treasury_balances(id),
	kind text not null,
	amount numeric not null,
	balance_before numeric not null,
	balance_after numeric not null,
	correlation_ref text not null default '',
	related_trade_id text not null default '',
	description text not null default '',
	status text not null,
	metadata jsonb not null default '{}',
	created_at timestamptz not null
);

create index if not exists idx_tx_strategy on treasury_transactions (strategy_id, created_at desc);
create index if not exists idx_tx_owner on treasury_transactions (owner_id);
create index if not exists idx_tx_kind_status on treasury_transactions (kind, status, created_at desc);
create unique index if not exists idx_tx_deposit_ref on treasury_transactions (strategy_id, correlation_ref)
	where kind = 'DEPOSIT' and correlation_ref <> '';
`
